package workflow

import "strings"

// Normalize lowercases a token and strips every non-alphanumeric character.
// It is used for role names and action names.
func Normalize(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range strings.ToLower(token) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var licenseeTokens = map[string]bool{
	"licensee":     true,
	"licenseuser":  true,
	"licenseeuser": true,
}

// IsLicenseeRole reports whether a role name belongs to the applicant-side family
func IsLicenseeRole(name string) bool {
	return licenseeTokens[Normalize(name)]
}

// Role families used by the action projector
const (
	FamilyCommissioner    = "commissioner"
	FamilyPermitSection   = "permit_section"
	FamilyLicensee        = "licensee"
	FamilyOfficerInCharge = "officer_in_charge"
	FamilyITCell          = "it_cell"
)

// DefaultRoleFamilies maps normalized role names to their family
var DefaultRoleFamilies = map[string]string{
	"commissioner":         FamilyCommissioner,
	"excisecommissioner":   FamilyCommissioner,
	"jointcommissioner":    FamilyCommissioner,
	"deputycommissioner":   FamilyCommissioner,
	"permitsection":        FamilyPermitSection,
	"permitsectionofficer": FamilyPermitSection,
	"permitsectionuser":    FamilyPermitSection,
	"licensee":             FamilyLicensee,
	"licenseuser":          FamilyLicensee,
	"licenseeuser":         FamilyLicensee,
	"officerincharge":      FamilyOfficerInCharge,
	"oic":                  FamilyOfficerInCharge,
	"siteadmin":            FamilyOfficerInCharge,
	"itcell":               FamilyITCell,
	"itcelluser":           FamilyITCell,
}

// FamilyResolver maps concrete role names onto role families
type FamilyResolver struct {
	families map[string]string
}

// NewFamilyResolver builds a resolver from the defaults plus overrides.
// Override keys are normalized before use.
func NewFamilyResolver(overrides map[string]string) *FamilyResolver {
	families := make(map[string]string, len(DefaultRoleFamilies)+len(overrides))
	for k, v := range DefaultRoleFamilies {
		families[k] = v
	}
	for k, v := range overrides {
		families[Normalize(k)] = v
	}
	return &FamilyResolver{families: families}
}

// Family returns the family of a role name. Unknown names map to their
// own normalized form so that exact matches still work.
func (f *FamilyResolver) Family(roleName string) string {
	n := Normalize(roleName)
	if fam, ok := f.families[n]; ok {
		return fam
	}
	return n
}

// Same reports whether two role names resolve to the same family
func (f *FamilyResolver) Same(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return Normalize(f.Family(a)) == Normalize(f.Family(b))
}
