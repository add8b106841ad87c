package media

// Transform is a display matrix in the layout used by the ISO-BMFF tkhd box:
// {a, b, u, c, d, v, x, y, w} with a-d, x, y in 16.16 and u, v, w in 2.30
// fixed point.
type Transform [9]int32

const (
	fixed16 = 0x00010000
	fixed30 = 0x40000000
)

// IdentityTransform leaves frames untouched.
var IdentityTransform = Transform{fixed16, 0, 0, 0, fixed16, 0, 0, 0, fixed30}

// IsIdentity reports whether t is the identity matrix or the zero value.
func (t Transform) IsIdentity() bool {
	return t == IdentityTransform || t == Transform{}
}

// RotationTransform returns the matrix for a clockwise rotation by a multiple
// of 90 degrees. width and height are the encoded frame size in pixels and
// are used for the translation component. ok is false for other angles.
func RotationTransform(degrees int, width, height int) (t Transform, ok bool) {
	w := int32(width) * fixed16
	h := int32(height) * fixed16

	switch ((degrees % 360) + 360) % 360 {
	case 0:
		return IdentityTransform, true
	case 90:
		return Transform{0, fixed16, 0, -fixed16, 0, 0, h, 0, fixed30}, true
	case 180:
		return Transform{-fixed16, 0, 0, 0, -fixed16, 0, w, h, fixed30}, true
	case 270:
		return Transform{0, -fixed16, 0, fixed16, 0, 0, 0, w, fixed30}, true
	}
	return Transform{}, false
}
