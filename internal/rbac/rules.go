package rbac

const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Default policy.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"outcome:view",
		"report:view-own",
	},
	RoleTeacher: {
		"outcome:view",
		"outcome:edit",
		"mapping:edit",
		"score:view",
		"score:write",
		"student:view",
		"student:write",
		"report:*",
	},
	RoleAdmin: {
		"*",
	},
}
