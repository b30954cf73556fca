package module

// Plan is a subscription tier. Tiers are ordered: free < basic < pro < enterprise.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

var planRanks = map[Plan]int{
	PlanFree:       0,
	PlanBasic:      1,
	PlanPro:        2,
	PlanEnterprise: 3,
}

// IsValid reports whether p is a known tier
func (p Plan) IsValid() bool {
	_, ok := planRanks[p]
	return ok
}

// rank returns the position of the tier, or -1 for unknown tiers
func (p Plan) rank() int {
	if r, ok := planRanks[p]; ok {
		return r
	}
	return -1
}

// Allows reports whether a tenant on plan p may use a module requiring the given tier
func (p Plan) Allows(required Plan) bool {
	if !p.IsValid() || !required.IsValid() {
		return false
	}
	return p.rank() >= required.rank()
}

// String returns the plan identifier
func (p Plan) String() string {
	return string(p)
}
