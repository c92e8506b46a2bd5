package register

import (
	"fmt"
	"unsafe"
)

// DataType 张量元素类型
type DataType int8

const (
	DTypeInvalid DataType = iota
	DTypeFloat32
	DTypeFloat64
	DTypeInt32
	DTypeInt64
	DTypeInt8
	DTypeUint8
)

var dtypeNames = map[DataType]string{
	DTypeFloat32: "float32",
	DTypeFloat64: "float64",
	DTypeInt32:   "int32",
	DTypeInt64:   "int64",
	DTypeInt8:    "int8",
	DTypeUint8:   "uint8",
}

func (d DataType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return "invalid"
}

// Size 单个元素的字节数
func (d DataType) Size() int {
	switch d {
	case DTypeFloat32, DTypeInt32:
		return 4
	case DTypeFloat64, DTypeInt64:
		return 8
	case DTypeInt8, DTypeUint8:
		return 1
	default:
		return 0
	}
}

// ParseDataType 解析类型名，空串视为 float32
func ParseDataType(s string) (DataType, error) {
	if s == "" {
		return DTypeFloat32, nil
	}
	for d, name := range dtypeNames {
		if name == s {
			return d, nil
		}
	}
	return DTypeInvalid, fmt.Errorf("unknown data type %q", s)
}

// Blob 一段张量数据：字节 + 形状 + 类型 + 每一维的有效元素数
//
// ValidNum 为 nil 表示整块数据都有效；物理 buffer 比逻辑数据大（batch padding）时，
// ValidNum[i] 记录第 i 维实际有效的元素个数。
type Blob struct {
	Data     []byte   `msgpack:"data"`
	Shape    []int64  `msgpack:"shape"`
	DType    DataType `msgpack:"dtype"`
	ValidNum []int64  `msgpack:"valid,omitempty"`
}

func NewBlob(data []byte, shape []int64, dtype DataType) *Blob {
	return &Blob{Data: data, Shape: append([]int64(nil), shape...), DType: dtype}
}

// ElemCount 按形状计算的元素个数，没有形状时按字节数推算
func (b *Blob) ElemCount() int64 {
	if b == nil {
		return 0
	}
	if len(b.Shape) == 0 {
		if sz := b.DType.Size(); sz > 0 {
			return int64(len(b.Data) / sz)
		}
		return 0
	}
	n := int64(1)
	for _, d := range b.Shape {
		n *= d
	}
	return n
}

// ValidElemCount 有效元素个数
func (b *Blob) ValidElemCount() int64 {
	if b == nil {
		return 0
	}
	if b.ValidNum == nil {
		return b.ElemCount()
	}
	n := int64(1)
	for i, d := range b.Shape {
		if i < len(b.ValidNum) {
			n *= b.ValidNum[i]
		} else {
			n *= d
		}
	}
	return n
}

// IsEmpty 空 blob：nil、没有元素，或者第 0 维有效数为 0
func (b *Blob) IsEmpty() bool {
	if b == nil || b.ElemCount() == 0 {
		return true
	}
	return len(b.ValidNum) > 0 && b.ValidNum[0] == 0
}

// SetValidNum 设置第 dim 维的有效元素数
func (b *Blob) SetValidNum(dim int, n int64) {
	if b.ValidNum == nil {
		b.ValidNum = append([]int64(nil), b.Shape...)
	}
	for len(b.ValidNum) <= dim {
		b.ValidNum = append(b.ValidNum, 0)
	}
	b.ValidNum[dim] = n
}

// ClearValidNum 所有维度有效数清零，表示这一片数据为空
func (b *Blob) ClearValidNum() {
	if len(b.Shape) == 0 {
		b.ValidNum = []int64{0}
		return
	}
	b.ValidNum = make([]int64, len(b.Shape))
}

// CopyValidNumFrom 形状一致时复制有效数
func (b *Blob) CopyValidNumFrom(src *Blob) bool {
	if src == nil || !sameShape(b.Shape, src.Shape) {
		return false
	}
	if src.ValidNum == nil {
		b.ValidNum = nil
		return true
	}
	b.ValidNum = append(b.ValidNum[:0], src.ValidNum...)
	return true
}

// Reset 数据清零并恢复为整块有效
func (b *Blob) Reset() {
	clear(b.Data)
	b.ValidNum = nil
}

// Clone 深拷贝，跨进程发送时使用
func (b *Blob) Clone() *Blob {
	if b == nil {
		return nil
	}
	c := &Blob{
		Data:  append([]byte(nil), b.Data...),
		Shape: append([]int64(nil), b.Shape...),
		DType: b.DType,
	}
	if b.ValidNum != nil {
		c.ValidNum = append([]int64(nil), b.ValidNum...)
	}
	return c
}

func sameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Elem View 支持的元素类型
type Elem interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~int8 | ~uint8
}

// View 把 blob 的字节按 T 解释，不拷贝
func View[T Elem](b *Blob) []T {
	if b == nil || len(b.Data) == 0 {
		return nil
	}
	var zero T
	n := len(b.Data) / int(unsafe.Sizeof(zero))
	if cnt := b.ElemCount(); cnt > 0 && int(cnt) < n {
		n = int(cnt)
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b.Data[0])), n)
}
