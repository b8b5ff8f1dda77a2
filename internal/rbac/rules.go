package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"scenario:view",
		"attempt:create",
		"attempt:submit",
		"attempt:view-own",
		"user:change_password",
	},
	"teacher": {
		"scenario:*",
		"attempt:create",
		"attempt:submit",
		"attempt:view-own",
		"attempt:view-all",
		"users:bulk_upsert",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
