package kmsabi

// DRM ioctl numbers, struct-compatible on amd64/arm64 Linux.
const (
	// DRM_IOCTL_SET_MASTER = _IO('d', 0x1e)
	IoctlSetMaster = 0x641e
	// DRM_IOCTL_DROP_MASTER = _IO('d', 0x1f)
	IoctlDropMaster = 0x641f

	// DRM_IOCTL_SET_CLIENT_CAP = _IOW('d', 0x0d, struct drm_set_client_cap)
	IoctlSetClientCap = 0x4010640d

	// DRM_IOCTL_VERSION = _IOWR('d', 0x00, struct drm_version)
	IoctlVersion = 0xc0406400

	// DRM_IOCTL_MODE_GETRESOURCES = _IOWR('d', 0xa0, struct drm_mode_card_res)
	IoctlModeGetResources = 0xc04064a0

	// DRM_IOCTL_MODE_GETCONNECTOR = _IOWR('d', 0xa7, struct drm_mode_get_connector)
	IoctlModeGetConnector = 0xc05064a7

	// DRM_IOCTL_MODE_GETENCODER = _IOWR('d', 0xa6, struct drm_mode_get_encoder)
	IoctlModeGetEncoder = 0xc01464a6

	// DRM_IOCTL_MODE_GETCRTC = _IOWR('d', 0xa1, struct drm_mode_crtc)
	IoctlModeGetCrtc = 0xc06864a1

	// DRM_IOCTL_MODE_GETPLANERESOURCES = _IOWR('d', 0xb5, struct drm_mode_get_plane_res)
	IoctlModeGetPlaneResources = 0xc01064b5

	// DRM_IOCTL_MODE_GETPLANE = _IOWR('d', 0xb6, struct drm_mode_get_plane)
	IoctlModeGetPlane = 0xc02064b6

	// DRM_IOCTL_MODE_OBJ_GETPROPERTIES = _IOWR('d', 0xb9, struct drm_mode_obj_get_properties)
	IoctlModeObjGetProperties = 0xc02064b9

	// DRM_IOCTL_MODE_OBJ_SETPROPERTY = _IOWR('d', 0xbb, struct drm_mode_obj_set_property)
	IoctlModeObjSetProperty = 0xc01864bb

	// DRM_IOCTL_MODE_GETPROPERTY = _IOWR('d', 0xaa, struct drm_mode_get_property)
	IoctlModeGetProperty = 0xc04064aa

	// DRM_IOCTL_MODE_GETPROPBLOB = _IOWR('d', 0xac, struct drm_mode_get_blob)
	IoctlModeGetPropBlob = 0xc01064ac

	// DRM_IOCTL_MODE_CREATEPROPBLOB = _IOWR('d', 0xbd, struct drm_mode_create_blob)
	IoctlModeCreatePropBlob = 0xc01064bd

	// DRM_IOCTL_MODE_DESTROYPROPBLOB = _IOWR('d', 0xbe, struct drm_mode_destroy_blob)
	IoctlModeDestroyPropBlob = 0xc00464be

	// DRM_IOCTL_MODE_ATOMIC = _IOWR('d', 0xbc, struct drm_mode_atomic)
	IoctlModeAtomic = 0xc03864bc

	// DRM_IOCTL_MODE_CREATE_DUMB = _IOWR('d', 0xb2, struct drm_mode_create_dumb)
	IoctlModeCreateDumb = 0xc02064b2

	// DRM_IOCTL_MODE_DESTROY_DUMB = _IOWR('d', 0xb4, struct drm_mode_destroy_dumb)
	IoctlModeDestroyDumb = 0xc00464b4

	// DRM_IOCTL_MODE_ADDFB2 = _IOWR('d', 0xb8, struct drm_mode_fb_cmd2)
	IoctlModeAddFb2 = 0xc06864b8

	// DRM_IOCTL_MODE_RMFB = _IOWR('d', 0xaf, uint32)
	IoctlModeRmFb = 0xc00464af

	// DRM_IOCTL_PRIME_HANDLE_TO_FD = _IOWR('d', 0x2d, struct drm_prime_handle)
	IoctlPrimeHandleToFD = 0xc00c642d
	// DRM_IOCTL_PRIME_FD_TO_HANDLE = _IOWR('d', 0x2e, struct drm_prime_handle)
	IoctlPrimeFDToHandle = 0xc00c642e

	// DRM_IOCTL_MODE_CREATE_LEASE = _IOWR('d', 0xc6, struct drm_mode_create_lease)
	IoctlModeCreateLease = 0xc01864c6
	// DRM_IOCTL_MODE_LIST_LESSEES = _IOWR('d', 0xc7, struct drm_mode_list_lessees)
	IoctlModeListLessees = 0xc01064c7
	// DRM_IOCTL_MODE_GET_LEASE = _IOWR('d', 0xc8, struct drm_mode_get_lease)
	IoctlModeGetLease = 0xc01064c8
	// DRM_IOCTL_MODE_REVOKE_LEASE = _IOW('d', 0xc9, struct drm_mode_revoke_lease)
	IoctlModeRevokeLease = 0x400464c9
)

// DRM client capabilities (DRM_IOCTL_SET_CLIENT_CAP).
const (
	ClientCapStereo3D       = 1
	ClientCapUniversalPlanes = 2
	ClientCapAtomic          = 3
)

// Atomic commit flags.
const (
	ModeAtomicPageFlipEvent = 0x01
	ModeAtomicAllowModeset  = 0x0400
	ModeAtomicNonblock      = 0x0200
	ModeAtomicTestOnly      = 0x0100
)

// Connector status values (struct drm_mode_get_connector.connection).
const (
	ConnectionConnected    = 1
	ConnectionDisconnected = 2
	ConnectionUnknown      = 3
)

// Plane type property enum values (as reported by the "type" plane property).
const (
	PlaneTypePrimary = 1
	PlaneTypeCursor  = 2
	PlaneTypeOverlay = 0
)

// Property flags (struct drm_mode_get_property.flags).
const (
	PropertyBlob     = 1 << 4
	PropertyEnum     = 1 << 3
	PropertyImmutable = 1 << 2
)

// Object type tags used by DRM_IOCTL_MODE_OBJ_GETPROPERTIES and friends.
const (
	ObjectConnector = 0xc0c0c0c0
	ObjectCrtc      = 0xcccccccc
	ObjectEncoder   = 0xe0e0e0e0
	ObjectPlane     = 0xeeeeeeee
)

// FormatModifierInvalid marks "no specific modifier" / linear-implied.
const FormatModifierInvalid = 0x00ffffffffffffff
