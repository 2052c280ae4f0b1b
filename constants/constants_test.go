package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentType(t *testing.T) {
	cases := map[string]DocumentType{
		"Rent Agreement":           RentAgreement,
		"rent_agreement":           RentAgreement,
		"  RENT   agreement ":      RentAgreement,
		"lease":                    RentAgreement,
		"Title_Deed":               TitleDeed,
		"sale deed":                TitleDeed,
		"noc":                      NOC,
		"No Objection Certificate": NOC,
		"Rent Agrement":            RentAgreement,
		"titel deed":               TitleDeed,
	}
	for in, want := range cases {
		got, err := ParseDocumentType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseDocumentTypeRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "   ", "electricity bill", "passport", "xyz", "pdf", "will", "q", "foo", "tax", "nocx"} {
		_, err := ParseDocumentType(in)
		assert.Error(t, err, in)
	}
}

func TestTypoBudget(t *testing.T) {
	assert.Equal(t, 0, typoBudget("noc"))
	assert.Equal(t, 1, typoBudget("deed"))
	assert.Equal(t, 2, typoBudget("title deed"))
	assert.Equal(t, 3, typoBudget("no objection certificate"))

	got, err := ParseDocumentType("deef")
	require.NoError(t, err)
	assert.Equal(t, TitleDeed, got)
}

func TestFolder(t *testing.T) {
	assert.Equal(t, "Rent_Agreement", RentAgreement.Folder())
	assert.Equal(t, "Title_Deed", TitleDeed.Folder())
	assert.Equal(t, "NOC", NOC.Folder())
}

func TestIsAllowedFile(t *testing.T) {
	assert.True(t, IsAllowedFile("lease.PDF"))
	assert.True(t, IsAllowedFile("scan.jpeg"))
	assert.True(t, IsAllowedFile("scan.png"))
	assert.False(t, IsAllowedFile(""))
	assert.False(t, IsAllowedFile("notes.txt"))
	assert.False(t, IsAllowedFile("pdf"))
	assert.Equal(t, PDF, MapExtToFormat(".pdf"))
	assert.Equal(t, IMAGE, MapExtToFormat("JPG"))
	assert.Equal(t, "", MapExtToFormat("heic"))
}
