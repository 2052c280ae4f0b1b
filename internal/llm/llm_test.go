package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/fields"
	"github.com/joseph-ayodele/property-verifier/internal/layout"
	"github.com/joseph-ayodele/property-verifier/internal/vlm"
)

const sampleReply = `Here is my assessment.

**BENEFITS:**
- Names of landlord and tenant are clearly stated
- Monthly rent amount is specified
- OK

RISKS:
1. No stamp duty paid on the agreement
2) Maintenance responsibilities are not defined
* short

COMPLETENESS: 85%

SUMMARY:
- Landlord: Ramesh Sharma
- Rent: Rs. 22,000 per month (100% due on the 5th)`

func rentData() ExtractedData {
	return ExtractedData{
		DocumentType: constants.RentAgreement,
		RawText:      "RENT AGREEMENT between Ramesh Sharma (Landlord) and Vaibhav Kulkarni (Tenant)",
		Layout:       layout.Features{SignatureDetected: true, ImageDimensions: [2]int{1240, 1754}},
		Fields: fields.Fields{
			fields.Landlord:   "Ramesh Sharma",
			fields.Tenant:     "Vaibhav Kulkarni",
			fields.RentAmount: "Rs. 22,000 per month",
		},
	}
}

func TestParseResponse(t *testing.T) {
	p := ParseResponse(sampleReply)

	assert.Equal(t, []string{
		"Names of landlord and tenant are clearly stated",
		"Monthly rent amount is specified",
	}, p.Benefits)
	assert.Equal(t, []string{
		"No stamp duty paid on the agreement",
		"Maintenance responsibilities are not defined",
	}, p.Risks)
	assert.Equal(t, 85.0, p.CompletenessScore)
	assert.InDelta(t, 0.85, p.ConfidenceScore, 1e-9)
	assert.False(t, p.Empty())
}

func TestParseResponseDefaultsAndClamping(t *testing.T) {
	cases := []struct {
		name         string
		reply        string
		completeness float64
		confidence   float64
	}{
		{"no percentage", "BENEFITS:\nThe agreement is signed by both parties", 75, 0.75},
		{"low percentage", "COMPLETENESS: 20%", 20, 0.60},
		{"high percentage", "COMPLETENESS: 100%", 100, 0.95},
		{"above range", "COMPLETENESS: 150 %", 100, 0.95},
		{"decimal", "completeness: 72.5%", 72.5, 0.725},
		{"percentage elsewhere", "The document is about 40% complete.", 40, 0.60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ParseResponse(tc.reply)
			assert.Equal(t, tc.completeness, p.CompletenessScore)
			assert.InDelta(t, tc.confidence, p.ConfidenceScore, 1e-9)
		})
	}
}

func TestParseResponsePrefersCompletenessSection(t *testing.T) {
	reply := "BENEFITS:\n- Rent is payable 100% in advance each month\nCOMPLETENESS: 64%"
	assert.Equal(t, 64.0, ParseResponse(reply).CompletenessScore)
}

func TestParseResponseIgnoresEmbeddedHeaderWords(t *testing.T) {
	reply := "RISKS:\n- Clause PROPERTY_RISKS: missing from schedule\n- Tenant identity proof not attached"
	p := ParseResponse(reply)
	assert.Len(t, p.Risks, 2)
	assert.Empty(t, p.Benefits)
}

func TestParseResponseEmpty(t *testing.T) {
	p := ParseResponse("I cannot analyze this document.")
	assert.True(t, p.Empty())
	assert.NotNil(t, p.Benefits)
	assert.Equal(t, DefaultCompleteness, p.CompletenessScore)
}

func TestBuildSummary(t *testing.T) {
	stamp := true
	data := rentData()
	data.Structured = vlm.StructuredData{StampPresent: &stamp}

	s := BuildSummary(data)
	assert.True(t, s.SignaturePresent)
	assert.True(t, s.StampDutyDetected)
	assert.Equal(t, "Rent Agreement", s.DocumentType)
	assert.Equal(t, "Ramesh Sharma", s.Landlord)
	assert.Equal(t, constants.NotDetected, s.PropertyAddress)
	assert.Equal(t, constants.NotDetected, s.Term)
	assert.Empty(t, s.Owner)

	bs, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"signaturePresent": true,
		"stampDutyDetected": true,
		"documentType": "Rent Agreement",
		"landlord": "Ramesh Sharma",
		"tenant": "Vaibhav Kulkarni",
		"propertyAddress": "Not detected",
		"term": "Not detected",
		"rentAmount": "Rs. 22,000 per month"
	}`, string(bs))
}

func TestBuildSummaryNOC(t *testing.T) {
	s := BuildSummary(ExtractedData{DocumentType: constants.NOC, Fields: fields.Fields{fields.Applicant: "Sarah Johnson"}})
	assert.False(t, s.SignaturePresent)
	assert.Equal(t, "Sarah Johnson", s.Applicant)
	assert.Equal(t, constants.NotDetected, s.Purpose)
	assert.Empty(t, s.Landlord)
}

func TestFallback(t *testing.T) {
	a := Fallback(ExtractedData{DocumentType: constants.TitleDeed})
	assert.Equal(t, []string{"Document uploaded successfully", "Basic information extracted"}, a.Benefits)
	assert.Equal(t, []string{"Unable to perform detailed analysis", "Manual review recommended"}, a.Risks)
	assert.Equal(t, 60.0, a.CompletenessScore)
	assert.Equal(t, 0.60, a.ConfidenceScore)
	assert.Equal(t, constants.NotDetected, a.Summary.Owner)
	require.NoError(t, ValidateAnalysis(constants.TitleDeed, a))
}

func TestDefaultPromptsRender(t *testing.T) {
	set, err := DefaultPrompts()
	require.NoError(t, err)

	out, err := set.Render(rentData())
	require.NoError(t, err)

	assert.Contains(t, out, "Analyze the following Rent Agreement document")
	assert.Contains(t, out, "Document Text: RENT AGREEMENT between Ramesh Sharma")
	assert.Contains(t, out, `"landlord": "Ramesh Sharma"`)
	assert.Contains(t, out, `"signature_detected": true`)
	for _, header := range []string{"BENEFITS:", "RISKS:", "COMPLETENESS:", "SUMMARY:"} {
		assert.Contains(t, out, header)
	}
	assert.Contains(t, out, "- 11-month lease clause compliance\n")
	assert.Contains(t, out, "- Legal compliance\n")
	assert.Contains(t, out, "Leases of 11 months or less")

	deed, err := set.Render(ExtractedData{DocumentType: constants.TitleDeed})
	require.NoError(t, err)
	assert.Contains(t, deed, "- Encumbrance status")
	assert.Contains(t, deed, "Extracted Fields: {}")
	assert.NotContains(t, deed, "11-month")

	cfg, ok := set.Config(constants.NOC)
	require.True(t, ok)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-6)
}

func TestRenderTruncatesLongText(t *testing.T) {
	set, err := DefaultPrompts()
	require.NoError(t, err)
	set.SetMaxTextChars(10)

	out, err := set.Render(ExtractedData{DocumentType: constants.NOC, RawText: strings.Repeat("x", 50)})
	require.NoError(t, err)
	assert.Contains(t, out, "Document Text: xxxxxxxxxx ...\n")
}

func TestLoadPromptsRequiresEveryType(t *testing.T) {
	fsys := fstest.MapFS{
		"base.prompt": {Data: []byte("---\nname: base\n---\nAnalyze {{ document_type }}")},
		"noc.prompt":  {Data: []byte("---\ndocument_type: NOC\n---\n")},
	}
	_, err := LoadPrompts(fsys)
	assert.ErrorContains(t, err, "Rent Agreement")

	_, err = LoadPrompts(fstest.MapFS{"noc.prompt": fsys["noc.prompt"]})
	assert.ErrorContains(t, err, "base.prompt")
}

func TestParsePromptWithoutFrontMatter(t *testing.T) {
	p, err := ParsePrompt("  Plain body\n")
	require.NoError(t, err)
	assert.Equal(t, "Plain body", p.Body)

	_, err = ParsePrompt("---\nname: [unclosed\n---\nbody")
	assert.Error(t, err)
}

type fakeReasoner struct {
	reply string
	err   error
	last  GenerateRequest
}

func (f *fakeReasoner) Ready() bool { return f.err == nil }

func (f *fakeReasoner) Generate(_ context.Context, req GenerateRequest) (string, error) {
	f.last = req
	return f.reply, f.err
}

func newTestAnalyzer(t *testing.T, r Reasoner, opts ...AnalyzerOption) *Analyzer {
	t.Helper()
	set, err := DefaultPrompts()
	require.NoError(t, err)
	return NewAnalyzer(r, set, nil, opts...)
}

func TestAnalyze(t *testing.T) {
	r := &fakeReasoner{reply: sampleReply}
	a := newTestAnalyzer(t, r, WithTemperature(0.1))

	got, fallback, err := a.Analyze(context.Background(), rentData())
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Len(t, got.Benefits, 2)
	assert.Len(t, got.Risks, 2)
	assert.Equal(t, 85.0, got.CompletenessScore)
	assert.Equal(t, "Vaibhav Kulkarni", got.Summary.Tenant)

	require.NotNil(t, r.last.Temperature)
	assert.InDelta(t, 0.1, *r.last.Temperature, 1e-6)
	assert.Contains(t, r.last.Prompt, "Rent Agreement")
	assert.True(t, a.Ready())
}

func TestAnalyzeUnparseableReplyFallsBack(t *testing.T) {
	a := newTestAnalyzer(t, &fakeReasoner{reply: "Sorry, I can't help with that."})

	got, fallback, err := a.Analyze(context.Background(), rentData())
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, 60.0, got.CompletenessScore)
	assert.Equal(t, "Ramesh Sharma", got.Summary.Landlord)
}

func TestAnalyzeTransportError(t *testing.T) {
	r := &fakeReasoner{err: errors.New("connection refused")}

	_, _, err := newTestAnalyzer(t, r).Analyze(context.Background(), rentData())
	assert.ErrorContains(t, err, "LLM analysis error: connection refused")

	got, fallback, err := newTestAnalyzer(t, r, WithFallbackOnError(true)).Analyze(context.Background(), rentData())
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, fallbackRisks, got.Risks)
}

func TestAnalysisJSONShape(t *testing.T) {
	a := Analysis{Summary: Summary{DocumentType: "NOC"}, Benefits: []string{}, Risks: []string{}}
	bs, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(bs), `"benefits":[]`)
	assert.Contains(t, string(bs), `"completeness_score":0`)
}

func TestValidateAnalysisRejectsOutOfRange(t *testing.T) {
	a := Fallback(rentData())
	a.ConfidenceScore = 0.99
	assert.ErrorContains(t, ValidateAnalysis(constants.RentAgreement, a), "does not match schema")

	a = Fallback(rentData())
	a.Summary.Owner = "Someone"
	assert.Error(t, ValidateAnalysis(constants.RentAgreement, a))
}

func TestOllamaGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:3b"}]}`))
		case "/api/generate":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"model":"llama3.2:3b","response":"BENEFITS: fine","done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL + "/"}, srv.Client(), nil)
	assert.False(t, o.Ready())
	require.NoError(t, o.Initialize(context.Background()))
	assert.True(t, o.Ready())

	temp := float32(0.2)
	reply, err := o.Generate(context.Background(), GenerateRequest{Prompt: "hello", Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "BENEFITS: fine", reply)
	assert.Equal(t, "llama3.2:3b", got.Model)
	assert.Equal(t, "hello", got.Prompt)
	assert.False(t, got.Stream)
	assert.InDelta(t, 0.2, got.Options["temperature"], 1e-6)
}

func TestOllamaErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"missing\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "missing"}, srv.Client(), nil)
	_, err := o.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "try pulling it first")

	assert.Error(t, o.Initialize(context.Background()))
	assert.False(t, o.Ready())

	down := NewOllama(OllamaConfig{BaseURL: "http://127.0.0.1:1"}, nil, nil)
	assert.Error(t, down.Initialize(context.Background()))
}
