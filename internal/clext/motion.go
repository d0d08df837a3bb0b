package clext

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Device query and version values from cl_intel_motion_estimation.
const (
	CL_DEVICE_ME_VERSION_INTEL uint32 = 0x407E

	CL_ME_VERSION_LEGACY_INTEL         uint32 = 0x0
	CL_ME_VERSION_ADVANCED_VER_1_INTEL uint32 = 0x1
	CL_ME_VERSION_ADVANCED_VER_2_INTEL uint32 = 0x2
)

// MotionEstimationDescSize is the encoded size of
// cl_motion_estimation_desc_intel.
const MotionEstimationDescSize = 16

// MBBlockType selects the macroblock partition searched by the kernel.
type MBBlockType uint32

const (
	MBBlockType16x16 MBBlockType = 0x0
	MBBlockType8x8   MBBlockType = 0x1
	MBBlockType4x4   MBBlockType = 0x2
)

func (t MBBlockType) String() string {
	switch t {
	case MBBlockType16x16:
		return "16x16"
	case MBBlockType8x8:
		return "8x8"
	case MBBlockType4x4:
		return "4x4"
	}
	return fmt.Sprintf("MBBlockType(%#x)", uint32(t))
}

// SubpixelMode selects the motion vector precision.
type SubpixelMode uint32

const (
	SubpixelModeInteger SubpixelMode = 0x0
	SubpixelModeHPEL    SubpixelMode = 0x1
	SubpixelModeQPEL    SubpixelMode = 0x2
)

func (m SubpixelMode) String() string {
	switch m {
	case SubpixelModeInteger:
		return "integer"
	case SubpixelModeHPEL:
		return "hpel"
	case SubpixelModeQPEL:
		return "qpel"
	}
	return fmt.Sprintf("SubpixelMode(%#x)", uint32(m))
}

// SADAdjustMode selects the transform applied before summing absolute
// differences.
type SADAdjustMode uint32

const (
	SADAdjustModeNone SADAdjustMode = 0x0
	SADAdjustModeHaar SADAdjustMode = 0x1
)

func (m SADAdjustMode) String() string {
	switch m {
	case SADAdjustModeNone:
		return "none"
	case SADAdjustModeHaar:
		return "haar"
	}
	return fmt.Sprintf("SADAdjustMode(%#x)", uint32(m))
}

// SearchPathType selects the search window radius.
type SearchPathType uint32

const (
	SearchPathRadius2x2   SearchPathType = 0x0
	SearchPathRadius4x4   SearchPathType = 0x1
	SearchPathRadius16x12 SearchPathType = 0x5
)

func (p SearchPathType) String() string {
	switch p {
	case SearchPathRadius2x2:
		return "radius-2x2"
	case SearchPathRadius4x4:
		return "radius-4x4"
	case SearchPathRadius16x12:
		return "radius-16x12"
	}
	return fmt.Sprintf("SearchPathType(%#x)", uint32(p))
}

// ErrUnknownSelector is wrapped by Validate for values outside the
// published constant set.
var ErrUnknownSelector = errors.New("unknown motion estimation selector")

// MotionEstimationDescIntel mirrors cl_motion_estimation_desc_intel. The
// fields are independent selectors; decoding never rejects unknown values.
type MotionEstimationDescIntel struct {
	MBBlockType    MBBlockType    `json:"mbBlockType" yaml:"mb_block_type"`
	SubpixelMode   SubpixelMode   `json:"subpixelMode" yaml:"subpixel_mode"`
	SADAdjustMode  SADAdjustMode  `json:"sadAdjustMode" yaml:"sad_adjust_mode"`
	SearchPathType SearchPathType `json:"searchPathType" yaml:"search_path_type"`
}

// Validate returns an error naming every field that holds a value the
// extension does not define.
func (d MotionEstimationDescIntel) Validate() error {
	var errs []error
	switch d.MBBlockType {
	case MBBlockType16x16, MBBlockType8x8, MBBlockType4x4:
	default:
		errs = append(errs, fmt.Errorf("%w: mb_block_type %#x", ErrUnknownSelector, uint32(d.MBBlockType)))
	}
	switch d.SubpixelMode {
	case SubpixelModeInteger, SubpixelModeHPEL, SubpixelModeQPEL:
	default:
		errs = append(errs, fmt.Errorf("%w: subpixel_mode %#x", ErrUnknownSelector, uint32(d.SubpixelMode)))
	}
	switch d.SADAdjustMode {
	case SADAdjustModeNone, SADAdjustModeHaar:
	default:
		errs = append(errs, fmt.Errorf("%w: sad_adjust_mode %#x", ErrUnknownSelector, uint32(d.SADAdjustMode)))
	}
	switch d.SearchPathType {
	case SearchPathRadius2x2, SearchPathRadius4x4, SearchPathRadius16x12:
	default:
		errs = append(errs, fmt.Errorf("%w: search_path_type %#x", ErrUnknownSelector, uint32(d.SearchPathType)))
	}
	return errors.Join(errs...)
}

// MarshalBinary encodes the descriptor in host byte order.
func (d MotionEstimationDescIntel) MarshalBinary() ([]byte, error) {
	b := make([]byte, MotionEstimationDescSize)
	binary.NativeEndian.PutUint32(b[0:], uint32(d.MBBlockType))
	binary.NativeEndian.PutUint32(b[4:], uint32(d.SubpixelMode))
	binary.NativeEndian.PutUint32(b[8:], uint32(d.SADAdjustMode))
	binary.NativeEndian.PutUint32(b[12:], uint32(d.SearchPathType))
	return b, nil
}

// UnmarshalBinary decodes exactly MotionEstimationDescSize bytes.
func (d *MotionEstimationDescIntel) UnmarshalBinary(data []byte) error {
	if len(data) != MotionEstimationDescSize {
		return &SizeError{Type: "cl_motion_estimation_desc_intel", Want: MotionEstimationDescSize, Got: len(data)}
	}
	d.MBBlockType = MBBlockType(binary.NativeEndian.Uint32(data[0:]))
	d.SubpixelMode = SubpixelMode(binary.NativeEndian.Uint32(data[4:]))
	d.SADAdjustMode = SADAdjustMode(binary.NativeEndian.Uint32(data[8:]))
	d.SearchPathType = SearchPathType(binary.NativeEndian.Uint32(data[12:]))
	return nil
}
