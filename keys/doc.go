// Package keys provides the concrete key models for region storage: 2D and
// 3D chunk coordinates, and the classic Minecraft region naming scheme.
//
// All three models split a coordinate into a region part (the upper bits,
// forming the region file's name) and a local part (the low 5 bits per
// axis, packed into the entry id). Keys are small immutable values and can
// be used as map keys.
package keys
