package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// DefaultModel authorizes a role subject against a route pattern and a method regex
const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// DefaultPolicies are seeded when the policy table is empty
var DefaultPolicies = [][]string{
	{"role_admin", "/api/*", ".*"},
	{"role_operator", "/api/operator/*", "^(GET|POST)$"},
	{"role_viewer", "/api/operator/*", "^GET$"},
}

// SubjectForRole maps an operator role to its casbin subject
func SubjectForRole(role string) string {
	return "role_" + role
}

type CasbinService struct{ E *casbin.Enforcer }

// NewCasbinService loads policies from the casbin_rule table. An empty
// modelPath uses DefaultModel.
func NewCasbinService(db *gorm.DB, modelPath string) (*CasbinService, error) {
	adp, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
	}

	var E *casbin.Enforcer
	if modelPath != "" {
		E, err = casbin.NewEnforcer(modelPath, adp)
	} else {
		var m model.Model
		m, err = model.NewModelFromString(DefaultModel)
		if err != nil {
			return nil, fmt.Errorf("failed to parse casbin model: %w", err)
		}
		E, err = casbin.NewEnforcer(m, adp)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if err := E.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load casbin policy: %w", err)
	}
	if err := seedDefaults(E); err != nil {
		return nil, err
	}
	return &CasbinService{E}, nil
}

func seedDefaults(e *casbin.Enforcer) error {
	existing, err := e.GetPolicy()
	if err != nil {
		return fmt.Errorf("failed to read casbin policy: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	if _, err := e.AddPolicies(DefaultPolicies); err != nil {
		return fmt.Errorf("failed to seed casbin policy: %w", err)
	}
	return nil
}
