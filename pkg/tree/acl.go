package tree

import (
	"fmt"
	"strconv"
)

// ACL is a permission mask with an owner, group and world class, laid out
// like Unix mode bits: each class holds read (4), write (2) and share (1).
type ACL uint16

// Permission bits within one class.
const (
	PermRead  ACL = 4
	PermWrite ACL = 2
	PermShare ACL = 1
)

// Class shifts.
const (
	ShiftOwner = 6
	ShiftGroup = 3
	ShiftWorld = 0
)

const (
	// ACLMask covers all valid bits
	ACLMask ACL = 0o777

	// ACLWriteBits covers the write bit of every class
	ACLWriteBits ACL = 0o222

	// ACLShareBits covers the share bit of every class
	ACLShareBits ACL = 0o111

	// ACLPrivate grants everything to the owner only
	ACLPrivate ACL = 0o700

	// ACLGroupRead adds group read access
	ACLGroupRead ACL = 0o740

	// ACLGroupWrite adds group read/write access
	ACLGroupWrite ACL = 0o760

	// ACLDefault is applied to nodes created without an explicit ACL
	ACLDefault ACL = 0o740
)

// Has reports whether every bit of perm, shifted into the given class, is set.
func (a ACL) Has(shift uint, perm ACL) bool {
	want := perm << shift
	return a&want == want
}

// String renders the mask as three rws triples, e.g. "rws-r----".
func (a ACL) String() string {
	out := make([]byte, 0, 9)
	for _, shift := range []uint{ShiftOwner, ShiftGroup, ShiftWorld} {
		for _, p := range []struct {
			bit ACL
			c   byte
		}{{PermRead, 'r'}, {PermWrite, 'w'}, {PermShare, 's'}} {
			if a.Has(shift, p.bit) {
				out = append(out, p.c)
			} else {
				out = append(out, '-')
			}
		}
	}
	return string(out)
}

// ParseACL parses an octal mask such as "0740" or "740".
func ParseACL(s string) (ACL, error) {
	v, err := strconv.ParseUint(s, 8, 16)
	if err != nil || ACL(v)&^ACLMask != 0 {
		return 0, fmt.Errorf("invalid acl %q", s)
	}
	return ACL(v), nil
}
