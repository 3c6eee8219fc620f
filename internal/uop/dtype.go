package uop

import "fmt"

// DType is the scalar element type carried by every UOp. An image dtype
// additionally carries a secondary (2D) shape used by the image-tiling
// demotion logic in buffer injection (spec.md §4.C).
type DType struct {
	Name     string
	ItemSize int
	// ImageShape is non-nil for image dtypes; Base is the dtype an image
	// dtype demotes to when it can't be tiled into 4-wide rows.
	ImageShape []int
	Base       *DType
}

func (d DType) String() string {
	if d.ImageShape != nil {
		return fmt.Sprintf("image<%s,%v>", d.Name, d.ImageShape)
	}
	return d.Name
}

// Key returns a canonical string used as part of the hash-consing key.
func (d DType) Key() string {
	return fmt.Sprintf("%s:%d:%v", d.Name, d.ItemSize, d.ImageShape)
}

// IsImage reports whether d is an image dtype.
func (d DType) IsImage() bool { return d.ImageShape != nil }

// BaseType returns the non-image base dtype (itself, if d is not an image).
func (d DType) BaseType() DType {
	if d.Base != nil {
		return *d.Base
	}
	return d
}

// Ptr returns the pointer-to-d dtype used by DefineGlobal arguments. Size
// is the element count the pointer addresses (kept informational; it does
// not change the dtype's identity for hash-consing since DefineGlobal
// nodes already carry a distinct global index in their Arg).
func (d DType) Ptr(size int) DType {
	return DType{Name: "ptr<" + d.Name + ">", ItemSize: d.ItemSize, Base: &d}
}

var (
	Void    = DType{Name: "void", ItemSize: 0}
	Bool    = DType{Name: "bool", ItemSize: 1}
	Int32   = DType{Name: "int32", ItemSize: 4}
	Int64   = DType{Name: "int64", ItemSize: 8}
	Float32 = DType{Name: "float32", ItemSize: 4}
	Float64 = DType{Name: "float64", ItemSize: 8}
)

// Image builds an image dtype over base with the given secondary shape.
func Image(base DType, shape []int) DType {
	b := base
	return DType{Name: "image<" + base.Name + ">", ItemSize: base.ItemSize, ImageShape: shape, Base: &b}
}
