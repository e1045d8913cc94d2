package identity

import (
	"encoding/json"
	"sort"
)

// Permission is a capability tag gating a view or an action.
type Permission string

const (
	PermViewAccounts     Permission = "VIEW_ACCOUNTS"
	PermUpdateAccounts   Permission = "UPDATE_ACCOUNTS"
	PermViewCards        Permission = "VIEW_CARDS"
	PermUpdateCards      Permission = "UPDATE_CARDS"
	PermViewTransactions Permission = "VIEW_TRANSACTIONS"
	PermViewPayments     Permission = "VIEW_PAYMENTS"
	PermMakePayments     Permission = "MAKE_PAYMENTS"
	PermViewReports      Permission = "VIEW_REPORTS"
	PermManageUsers      Permission = "MANAGE_USERS"
	PermAdminSettings    Permission = "ADMIN_SETTINGS"
)

var regularPermissions = []Permission{
	PermViewAccounts,
	PermViewCards,
	PermViewTransactions,
	PermViewPayments,
	PermMakePayments,
	PermViewReports,
}

var adminPermissions = append(append([]Permission{}, regularPermissions...),
	PermUpdateAccounts,
	PermUpdateCards,
	PermManageUsers,
	PermAdminSettings,
)

// PermissionsForRole returns a fresh set; unknown roles get nothing.
func PermissionsForRole(role Role) PermissionSet {
	switch role {
	case RoleAdmin:
		return NewPermissionSet(adminPermissions...)
	case RoleRegular:
		return NewPermissionSet(regularPermissions...)
	}
	return NewPermissionSet()
}

// PermissionSet serialises as a sorted JSON array.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

func (s PermissionSet) Slice() []Permission {
	perms := make([]Permission, 0, len(s))
	for p := range s {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

func (s PermissionSet) Clone() PermissionSet {
	return NewPermissionSet(s.Slice()...)
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var perms []Permission
	if err := json.Unmarshal(data, &perms); err != nil {
		return err
	}
	*s = NewPermissionSet(perms...)
	return nil
}
