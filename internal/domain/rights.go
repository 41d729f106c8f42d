package domain

import "strings"

// AccessRight is the bit-flag mask of permissions granted by a share.
type AccessRight int

// Access right flags in mask order.
const (
	AccessRead     AccessRight = 1 << iota // 1
	AccessWrite                            // 2
	AccessAppend                           // 4
	AccessAppendTo                         // 8
	AccessCreate                           // 16
	AccessDelete                           // 32
	AccessShare                            // 64
	AccessAssign                           // 128
)

var accessRightNames = []struct {
	flag AccessRight
	name string
}{
	{AccessRead, "Read"},
	{AccessWrite, "Write"},
	{AccessAppend, "Append"},
	{AccessAppendTo, "AppendTo"},
	{AccessCreate, "Create"},
	{AccessDelete, "Delete"},
	{AccessShare, "Share"},
	{AccessAssign, "Assign"},
}

// Labels renders the mask as a comma-joined label list, or "None" for a
// zero mask.
func (r AccessRight) Labels() string {
	if r == 0 {
		return "None"
	}
	var parts []string
	for _, f := range accessRightNames {
		if r&f.flag != 0 {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, ", ")
}

// PrivilegeDepth is the scope of a granted privilege.
type PrivilegeDepth int

// Privilege depth values as stored by the remote service.
const (
	DepthUser         PrivilegeDepth = 1
	DepthBusinessUnit PrivilegeDepth = 2
	DepthParentChild  PrivilegeDepth = 4
	DepthOrganization PrivilegeDepth = 8
)

// Label returns the display name for the depth, empty for unknown values.
func (d PrivilegeDepth) Label() string {
	switch d {
	case DepthUser:
		return "User"
	case DepthBusinessUnit:
		return "Business Unit"
	case DepthParentChild:
		return "Parent: Child Business Units"
	case DepthOrganization:
		return "Organization"
	default:
		return ""
	}
}
