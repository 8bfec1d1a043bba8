package identity

// Authorize is the single policy decision point for resource-level writes.
//
// Role membership alone can be checked as coarse middleware, but department
// scoping depends on the resource being touched (the event's department, not
// just the actor's), so every write operation resolves it here, per resource:
//
//   - a role outside allowed is denied outright
//   - super_admin acts without restriction
//   - central actors (nil department) act without restriction
//   - department-scoped actors require a resource in their own department;
//     a resource with no department never matches a scoped actor
//
// Pure function, no I/O: unit-testable without HTTP or storage.
func Authorize(role Role, actorDept, resourceDept *int64, allowed []Role) bool {
	permitted := false
	for _, r := range allowed {
		if role == r {
			permitted = true
			break
		}
	}
	if !permitted {
		return false
	}
	if role == RoleSuperAdmin {
		return true
	}
	if actorDept == nil {
		return true
	}
	return resourceDept != nil && *actorDept == *resourceDept
}

// CanSee reports whether the actor's department scope covers a resource in
// resourceDept. Used to filter read results (scan, event listing); same
// scoping rule as Authorize without the role-membership gate.
func CanSee(actor Actor, resourceDept *int64) bool {
	if actor.Role == RoleSuperAdmin || actor.IsCentral() {
		return true
	}
	return resourceDept != nil && *actor.Department == *resourceDept
}
