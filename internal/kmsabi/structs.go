package kmsabi

// Wire structs mirroring the kernel's uapi/drm/drm_mode.h layouts. Field
// order and width must match exactly; these are passed by pointer straight
// into ioctl(2).

// ModeCardRes mirrors struct drm_mode_card_res.
type ModeCardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

// ModeGetConnector mirrors struct drm_mode_get_connector.
type ModeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

// ModeGetEncoder mirrors struct drm_mode_get_encoder.
type ModeGetEncoder struct {
	EncoderID     uint32
	EncoderType   uint32
	CrtcID        uint32
	PossibleCrtcs uint32
	PossibleClones uint32
}

// ModeCrtc mirrors struct drm_mode_crtc.
type ModeCrtc struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FbID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             ModeInfo
}

// ModeInfo mirrors struct drm_mode_modeinfo (68 bytes).
type ModeInfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

// ModeGetPlaneRes mirrors struct drm_mode_get_plane_res.
type ModeGetPlaneRes struct {
	PlaneIDPtr uint64
	CountPlanes uint32
}

// ModeGetPlane mirrors struct drm_mode_get_plane.
type ModeGetPlane struct {
	PlaneID           uint32
	CrtcID            uint32
	FbID              uint32
	PossibleCrtcs     uint32
	GammaSize         uint32
	CountFormatTypes  uint32
	FormatTypePtr     uint64
}

// ModeObjGetProperties mirrors struct drm_mode_obj_get_properties.
type ModeObjGetProperties struct {
	PropsPtr      uint64
	PropValuesPtr uint64
	CountProps    uint32
	ObjID         uint32
	ObjType       uint32
}

// ModeObjSetProperty mirrors struct drm_mode_obj_set_property.
type ModeObjSetProperty struct {
	Value   uint64
	PropID  uint32
	ObjID   uint32
	ObjType uint32
}

// ModeGetProperty mirrors struct drm_mode_get_property (trimmed; enum/blob
// tables are fetched in a second call the same way resources are).
type ModeGetProperty struct {
	ValuesPtr  uint64
	EnumBlobPtr uint64
	PropID     uint32
	Flags      uint32
	Name       [32]byte
	CountValues uint32
	CountEnumBlobs uint32
}

// ModePropertyEnum mirrors struct drm_mode_property_enum.
type ModePropertyEnum struct {
	Value uint64
	Name  [32]byte
}

// ModeGetBlob mirrors struct drm_mode_get_blob.
type ModeGetBlob struct {
	BlobID uint32
	Length uint32
	Data   uint64
}

// ModeCreateBlob mirrors struct drm_mode_create_blob.
type ModeCreateBlob struct {
	Data   uint64
	Length uint32
	BlobID uint32
}

// ModeDestroyBlob mirrors struct drm_mode_destroy_blob.
type ModeDestroyBlob struct {
	BlobID uint32
}

// ModeAtomic mirrors struct drm_mode_atomic.
type ModeAtomic struct {
	Flags         uint32
	CountObjs     uint32
	ObjsPtr       uint64
	CountPropsPtr uint64
	PropsPtr      uint64
	PropValuesPtr uint64
	Reserved      uint64
	UserData      uint64
}

// ModeCreateDumb mirrors struct drm_mode_create_dumb.
type ModeCreateDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// ModeDestroyDumb mirrors struct drm_mode_destroy_dumb.
type ModeDestroyDumb struct {
	Handle uint32
}

// ModeFbCmd2 mirrors struct drm_mode_fb_cmd2.
type ModeFbCmd2 struct {
	FbID     uint32
	Width    uint32
	Height   uint32
	PixelFormat uint32
	Flags    uint32
	Handles  [4]uint32
	Pitches  [4]uint32
	Offsets  [4]uint32
	Modifier [4]uint64
}

// PrimeHandle mirrors struct drm_prime_handle.
type PrimeHandle struct {
	Handle uint32
	Flags  uint32
	FD     int32
}

// SetClientCap mirrors struct drm_set_client_cap.
type SetClientCap struct {
	Capability uint64
	Value      uint64
}

// CreateLease mirrors struct drm_mode_create_lease.
type CreateLease struct {
	ObjectIDs   uint64
	ObjectCount uint32
	Flags       uint32
	LesseeID    uint32
	FD          int32
}

// ListLessees mirrors struct drm_mode_list_lessees.
type ListLessees struct {
	CountLessees uint32
	Pad          uint32
	LesseesPtr   uint64
}

// GetLease mirrors struct drm_mode_get_lease.
type GetLease struct {
	CountObjects uint32
	Pad          uint32
	ObjectsPtr   uint64
}

// RevokeLease mirrors struct drm_mode_revoke_lease.
type RevokeLease struct {
	LesseeID uint32
}

// Version mirrors struct drm_version (the string fields are filled in by a
// two-pass call, as with every other variable-length DRM ioctl).
type Version struct {
	VersionMajor      int32
	VersionMinor      int32
	VersionPatchlevel int32
	NameLen           uint64
	NamePtr           uint64
	DateLen           uint64
	DatePtr           uint64
	DescLen           uint64
	DescPtr           uint64
}

// Event is the common header of every record in the DRM event read-stream
// (struct drm_event). Vblank and page-flip-complete events follow it with
// drm_event_vblank's extra fields.
type Event struct {
	Type   uint32
	Length uint32
}

// EventVblank mirrors struct drm_event_vblank, used for both
// DRM_EVENT_VBLANK and DRM_EVENT_FLIP_COMPLETE.
type EventVblank struct {
	Base        Event
	UserData    uint64
	TvSec       uint32
	TvUsec      uint32
	Sequence    uint32
	CrtcID      uint32 // only valid for FLIP_COMPLETE with DRM_CAP_CRTC_IN_VBLANK_EVENT
}

const (
	EventVblankType       = 0x01
	EventFlipCompleteType = 0x02
	EventCrtcSequenceType = 0x03
)
