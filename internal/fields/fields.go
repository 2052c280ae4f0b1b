// Package fields pulls well-known values (parties, amounts, addresses) out of
// OCR text with per-document-type regular expressions.
package fields

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/property-verifier/constants"
)

// Field keys. These are the keys of Fields and of the "extracted_fields" payload.
const (
	Landlord        = "landlord"
	Tenant          = "tenant"
	PropertyAddress = "property_address"
	Term            = "term"
	RentAmount      = "rent_amount"
	SecurityDeposit = "security_deposit"
	RentDueDate     = "rent_due_date"
	Owner           = "owner"
	PropertyDetails = "property_details"
	Applicant       = "applicant"
	Purpose         = "purpose"
)

// Fields maps a field key to its extracted value. Missing keys were not found.
type Fields map[string]string

// Get returns the value for key or constants.NotDetected.
func (f Fields) Get(key string) string {
	if v, ok := f[key]; ok && v != "" {
		return v
	}
	return constants.NotDetected
}

// rule extracts one or more fields. Rules for the same field are tried in
// order and the first match wins.
type rule struct {
	re     *regexp.Regexp
	keys   []string // one key per capture group
	prefix string   // prepended to every captured value
}

func r(pattern string, keys ...string) rule {
	return rule{re: regexp.MustCompile(pattern), keys: keys}
}

func (x rule) withPrefix(p string) rule {
	x.prefix = p
	return x
}

var rules = map[constants.DocumentType][]rule{
	constants.RentAgreement: {
		r(`(?is)between\s+([A-Za-z\s,.]+?),\s+herein\s+called\s+["“'`+"`"+`]?Landlord["”'`+"`"+`]?,?.*?and\s+([A-Za-z\s,.]+?),\s+herein\s+called\s+["“'`+"`"+`]?Tenant`, Landlord, Tenant),
		r(`(?i)between\s+([A-Za-z][A-Za-z .,]*?)\s*\(\s*(?:the\s+)?Landlord\s*\)\s*,?\s*and\s+([A-Za-z][A-Za-z .,]*?)\s*\(\s*(?:the\s+)?Tenant\s*\)`, Landlord, Tenant),
		r(`(?im)^[\t ]*(?:landlord|lessor|owner)(?:'s)?(?:[\t ]+name)?[\t ]*[:\-][\t ]*([^\n]+)`, Landlord),
		r(`(?im)^[\t ]*(?:tenant|lessee)(?:'s)?(?:[\t ]+name)?[\t ]*[:\-][\t ]*([^\n]+)`, Tenant),

		r(`(?is)located\s+at\s+([0-9A-Za-z\s,./#-]+?)\s+under\s+the\s+following`, PropertyAddress),
		r(`(?im)^[\t ]*(?:property\s+address|address\s+of\s+(?:the\s+)?property|premises)[\t ]*[:\-][\t ]*([^\n]+)`, PropertyAddress),
		r(`(?i)property\s+located\s+at\s+([^\n]+)`, PropertyAddress),

		r(`(?i)fixed\s+term\s+of\s+([a-zA-Z0-9 ]+),`, Term),
		r(`(?im)^[\t ]*(?:lease\s+|rental\s+)?(?:term|period|duration)[\t ]*[:\-][\t ]*([^\n]+)`, Term),
		r(`(?i)(?:for\s+a\s+)?period\s+of\s+(\d+\s*\(?[a-z ]*\)?\s*months?)`, Term),

		r(`(?i)sum\s+of\s+\$([0-9,]+(?:\.\d{2})?)\s+per\s+month`, RentAmount).withPrefix("$"),
		r(`(?im)^[\t ]*(?:monthly\s+)?rent(?:\s+amount)?[\t ]*[:\-][\t ]*([^\n]+)`, RentAmount),
		r(`(?i)monthly\s+rent\s+of\s+((?:rs\.?|inr|₹|\$)\s*[0-9,]+(?:\.\d{2})?)`, RentAmount),

		r(`(?i)security\s+deposit\s+of\s+\$([0-9,]+(?:\.\d{2})?)`, SecurityDeposit).withPrefix("$"),
		r(`(?im)^[\t ]*(?:security\s+)?deposit[\t ]*[:\-][\t ]*([^\n]+)`, SecurityDeposit),
		r(`(?i)security\s+deposit\s+of\s+((?:rs\.?|inr|₹)\s*[0-9,]+(?:\.\d{2})?)`, SecurityDeposit),

		r(`(?i)payable\s+monthly\s+in\s+advance\s+on\s+the\s+([0-9A-Za-z]+\s+day)\s+of\s+each\s+month`, RentDueDate),
		r(`(?im)^[\t ]*(?:rent\s+)?due\s+(?:date|on)[\t ]*[:\-]?[\t ]*([^\n]+)`, RentDueDate),
		r(`(?i)on\s+or\s+before\s+the\s+([0-9]+(?:st|nd|rd|th)?(?:\s+day)?)\s+of\s+(?:each|every)\s+month`, RentDueDate),
	},
	constants.TitleDeed: {
		r(`(?im)\b(?:owner|proprietor)(?:'s)?(?:[\t ]+name)?[\t ]*:[\t ]*([A-Za-z .]+)`, Owner),
		r(`(?i)\b(?:owner|proprietor)[\t ]+([A-Za-z][A-Za-z .]*)`, Owner),

		r(`(?im)\b(?:property|plot)(?:[\t ]+(?:details|description|no\.?))?[\t ]*:[\t ]*([A-Za-z0-9 ,./#-]+)`, PropertyDetails),
		r(`(?i)\b(?:property|plot)[\t ]+([A-Za-z0-9][A-Za-z0-9 ,./#-]*)`, PropertyDetails),
	},
	constants.NOC: {
		r(`(?im)\b(?:applicant|name)(?:[\t ]+name)?[\t ]*:[\t ]*([A-Za-z .]+)`, Applicant),
		r(`(?i)\bapplicant[\t ]+([A-Za-z][A-Za-z .]*)`, Applicant),

		r(`(?im)\b(?:purpose|reason)[\t ]*:[\t ]*([^\n]+)`, Purpose),
		r(`(?i)\b(?:purpose|reason)[\t ]+(?:of|for)[\t ]+([A-Za-z][A-Za-z ]*)`, Purpose),
	},
}

var keyOrder = map[constants.DocumentType][]string{
	constants.RentAgreement: {Landlord, Tenant, PropertyAddress, Term, RentAmount, SecurityDeposit, RentDueDate},
	constants.TitleDeed:     {Owner, PropertyDetails},
	constants.NOC:           {Applicant, Purpose},
}

// Keys lists the field keys extracted for a document type, in display order.
func Keys(docType constants.DocumentType) []string {
	return append([]string(nil), keyOrder[docType]...)
}

// Extract runs the rules for docType over text. Unknown types yield an empty map.
func Extract(text string, docType constants.DocumentType) Fields {
	out := Fields{}
	if strings.TrimSpace(text) == "" {
		return out
	}
	for _, ru := range rules[docType] {
		if covered(out, ru.keys) {
			continue
		}
		m := ru.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		vals := make([]string, len(ru.keys))
		ok := true
		for i, k := range ru.keys {
			vals[i] = clean(m[i+1])
			if partyKeys[k] {
				vals[i] = reHonorific.ReplaceAllString(vals[i], "")
			}
			if vals[i] == "" || rePlaceholder.MatchString(vals[i]) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		for i, k := range ru.keys {
			if _, seen := out[k]; !seen {
				out[k] = ru.prefix + vals[i]
			}
		}
	}
	return out
}

func covered(f Fields, keys []string) bool {
	for _, k := range keys {
		if _, ok := f[k]; !ok {
			return false
		}
	}
	return true
}

var (
	reSpaces      = regexp.MustCompile(`\s+`)
	reHonorific   = regexp.MustCompile(`(?i)^(?:mr|mrs|ms|miss|dr|shri|smt|sri|m/s)\.?\s+`)
	rePlaceholder = regexp.MustCompile(`^\[.*\]$`)
)

// partyKeys hold person names; a leading honorific is dropped from them.
var partyKeys = map[string]bool{Landlord: true, Tenant: true, Owner: true, Applicant: true}

func clean(s string) string {
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.Trim(s, " ,;:.-")
}
