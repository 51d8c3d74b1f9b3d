package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formpilot/internal/dom/htmldom"
	"github.com/v0xg/formpilot/internal/engine"
	"github.com/v0xg/formpilot/internal/executor"
	"github.com/v0xg/formpilot/internal/fields"
)

func ptr(s string) *string { return &s }

func TestProfile_FullName(t *testing.T) {
	tests := []struct {
		name    string
		profile engine.Profile
		want    string
	}{
		{"both", engine.Profile{FirstName: ptr("Ada"), LastName: ptr("Lovelace")}, "Ada Lovelace"},
		{"first only", engine.Profile{FirstName: ptr("Ada")}, "Ada"},
		{"last only", engine.Profile{FirstName: ptr("  "), LastName: ptr("Lovelace")}, "Lovelace"},
		{"neither", engine.Profile{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.Value(fields.FullName))
		})
	}
}

func TestProfile_IsEmpty(t *testing.T) {
	assert.True(t, engine.Profile{}.IsEmpty())
	assert.True(t, engine.Profile{Email: ptr(""), City: ptr("   ")}.IsEmpty())
	assert.False(t, engine.Profile{LinkedInURL: ptr("https://linkedin.com/in/ada")}.IsEmpty())
}

func TestEngine_Fill(t *testing.T) {
	doc := htmldom.MustParse(`
		<form>
			<input autocomplete="given-name" id="fn">
			<input autocomplete="family-name" id="ln">
			<input autocomplete="email" id="em" value="old@example.com">
		</form>`)
	e := engine.New(doc)

	report := e.Fill(engine.Profile{
		FirstName: ptr("Ada"),
		Email:     ptr("ada@example.com"),
	})

	assert.Equal(t, 1, report.Filled)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Results, 3)

	assert.Equal(t, executor.FillResult{Type: fields.FirstName, ID: "fn", Filled: true}, report.Results[0])
	assert.Equal(t, executor.FillResult{Type: fields.LastName, ID: "ln", Reason: executor.ReasonNoValue}, report.Results[1])
	assert.Equal(t, executor.FillResult{Type: fields.Email, ID: "em", Reason: executor.ReasonNotFillable}, report.Results[2])

	assert.Equal(t, "Ada", doc.Find("#fn").Value())
	assert.Equal(t, "old@example.com", doc.Find("#em").Value())
}

func TestEngine_FillRescans(t *testing.T) {
	doc := htmldom.MustParse(`<form id="f"></form>`)
	e := engine.New(doc)
	assert.Empty(t, e.Scan().FillableFields)

	require.NoError(t, doc.Append("#f", `<input autocomplete="email" id="em">`))

	report := e.Fill(engine.Profile{Email: ptr("ada@example.com")})
	assert.Equal(t, 1, report.Filled)
	assert.Len(t, e.Last().FillableFields, 1)
}

func TestEngine_FillPassesValuesThrough(t *testing.T) {
	doc := htmldom.MustParse(`
		<div><input autocomplete="given-name" id="fn"></div>
		<div><input autocomplete="family-name" id="ln"></div>`)

	report := engine.New(doc).Fill(engine.Profile{
		FirstName: ptr(" Ada "),
		LastName:  ptr("   "),
	})

	require.Len(t, report.Results, 2)
	assert.Equal(t, " Ada ", doc.Find("#fn").Value())
	assert.Equal(t, executor.ReasonNoValue, report.Results[1].Reason)
	assert.Empty(t, doc.Find("#ln").Value())
}
