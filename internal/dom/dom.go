// Package dom defines the slice of the browser DOM that the scan and fill
// logic needs. Hosts (a static goquery tree or a live rod page) implement it.
package dom

// Rect is an element's rendered bounding box size.
type Rect struct {
	Width  float64
	Height float64
}

// Empty reports whether both dimensions are zero.
func (r Rect) Empty() bool {
	return r.Width == 0 && r.Height == 0
}

// Element is a single DOM element. Implementations never outlive the
// document they were obtained from.
type Element interface {
	// Tag returns the lowercase tag name.
	Tag() string
	// Attr returns the attribute value, or "" when absent.
	Attr(name string) string
	HasAttr(name string) bool
	// Type returns the lowercase type attribute ("" when absent).
	Type() string
	Disabled() bool
	ReadOnly() bool
	// MaxLength returns the maxLength property; -1 when unset.
	MaxLength() int
	Value() string
	// Text returns the element's text content.
	Text() string
	Rect() Rect

	Parent() Element
	// Closest returns the nearest ancestor with the given tag, or nil.
	Closest(tag string) Element
	// First returns the first descendant with the given tag, or nil.
	First(tag string) Element

	Focus() error
	Blur() error
	// SetNativeValue assigns through the element prototype's value setter,
	// bypassing any setter a framework installed on the instance.
	SetNativeValue(v string) error
	// Dispatch fires a DOM event of the given type.
	Dispatch(event string, bubbles bool) error
}

// Document is one frame's document.
type Document interface {
	// QueryAll returns every element with one of the tags, in document order.
	QueryAll(tags ...string) []Element
	// ByID returns the element with the id, or nil.
	ByID(id string) Element
	// LabelFor returns the first label whose for attribute equals id, or nil.
	LabelFor(id string) Element
	// Loaded reports whether the document finished loading.
	Loaded() bool
}

// Mutation describes nodes added to a document.
type Mutation struct {
	// AddedTags lists tags of every added element, including descendants.
	AddedTags []string
}

// Adds reports whether the mutation added any element with one of tags.
func (m Mutation) Adds(tags ...string) bool {
	for _, added := range m.AddedTags {
		for _, t := range tags {
			if added == t {
				return true
			}
		}
	}
	return false
}

// Observable is implemented by documents that report mutations and the
// load event.
type Observable interface {
	// Observe registers fn for added nodes and returns a function that
	// disconnects it.
	Observe(fn func(Mutation)) (disconnect func())
	// OnLoad registers fn to run once when the document finishes loading.
	// It is not called if the document is already loaded.
	OnLoad(fn func())
}
