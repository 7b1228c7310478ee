// Package gfxapi defines the narrow interface the output core needs from a
// GPU rendering backend: texture/framebuffer import, render-pass
// construction, and GPU reset detection. The backend implementation itself
// lives outside this module; only the boundary is defined here.
package gfxapi

import "os"

// API identifies which graphics API a device's Context was built against.
type API int

const (
	APIUnset API = iota
	APIOpenGLES
	APIVulkan
)

func (a API) String() string {
	switch a {
	case APIOpenGLES:
		return "gles"
	case APIVulkan:
		return "vulkan"
	default:
		return "unset"
	}
}

// Context is a GPU rendering context bound to one DRM device (render node
// or primary node). make_render_device / set_gfx_api operate on these.
type Context interface {
	API() API
	DeviceID() int
	// ImportDmabuf imports a dmabuf fd as a texture usable by this context.
	ImportDmabuf(fd int, width, height int, format uint32, modifier uint64) (Texture, error)
	// ImportFramebuffer wraps a locally-allocated scanout buffer (see
	// internal/kms/scanout.go) as a GPU-writable framebuffer.
	ImportFramebuffer(dmabufFD int, width, height int, format uint32, modifier uint64) (Framebuffer, error)
	// Reset reports whether the kernel driver has reported a GPU reset
	// since the context was created, used for reset polling.
	Reset() bool
}

// Texture is a sampleable GPU image, potentially backed by a client dmabuf.
type Texture interface {
	Size() (width, height int)
	Format() Format
	// Dmabuf returns the backing dmabuf id and fd if the texture is
	// dmabuf-backed (as opposed to shared-memory-backed); ok is false for
	// shm buffers, which can never be scanned out directly.
	Dmabuf() (id DmabufID, fd int, modifier uint64, ok bool)
}

// Framebuffer is a renderable, scanout-capable GPU surface.
type Framebuffer interface {
	Size() (width, height int)
	// CreateRenderPass builds the ordered operation list the present
	// engine will either execute (full composition) or inspect for a
	// direct-scanout substitution.
	CreateRenderPass(ops []Op, clear *Color) RenderPass
	// Render executes a previously built render pass and returns an
	// optional sync file signaling completion of the GPU work, for the
	// caller to pass as in_fence_fd on the ensuing atomic commit.
	Render(pass RenderPass) (*SyncFile, error)
}

// RenderPass is an opaque, backend-built representation of Ops ready to
// execute; Ops() exposes the same list back out for the direct-scanout
// probe (internal/kms/directscanout.go) to walk without re-deriving it.
type RenderPass interface {
	Ops() []Op
	Clear() *Color
}

// Format describes a pixel format as the render backend understands it.
type Format struct {
	DRM      uint32 // fourcc
	HasAlpha bool
	Opaque   *Format // the opaque sibling of an alpha format, if any
}

// DmabufID is a stable identifier for a client dmabuf, stable across
// frames for as long as the client keeps the buffer alive. Used as the
// direct-scanout cache key.
type DmabufID uint64

// SyncFile wraps a Linux sync_file fd used for explicit GPU/display
// synchronization (acquire/release fences).
type SyncFile struct {
	FD *os.File
}

// Color is a premultiplied RGBA fill color; SolidBlack is the CRTC
// background color the direct-scanout probe treats as transparent.
type Color struct{ R, G, B, A float32 }

var SolidBlack = Color{0, 0, 0, 1}

// Rect is a normalized device-space rectangle, [-1, 1] on both axes,
// a common convention for normalized render target coordinates.
type Rect struct{ X1, Y1, X2, Y2 float32 }

// IsCovering reports whether the rect fully covers the [-1, 1] clip space.
func (r Rect) IsCovering() bool {
	return r.X1 <= -1 && r.Y1 <= -1 && r.X2 >= 1 && r.Y2 >= 1
}

// AcquireSyncKind distinguishes how a CopyTexture op's source buffer
// becomes safe to sample.
type AcquireSyncKind int

const (
	AcquireSyncNone AcquireSyncKind = iota
	AcquireSyncImplicit
	AcquireSyncFile
	AcquireSyncUnnecessary
)

// AcquireSync is attached to a CopyTexture op.
type AcquireSync struct {
	Kind     AcquireSyncKind
	SyncFile *SyncFile
}

// Op is one entry of a render-pass operation list (the downward
// interface): Sync | FillRect{rect,color} | CopyTexture{...}.
type Op struct {
	Kind OpKind

	// FillRect fields.
	FillRect Rect
	Color    Color

	// CopyTexture fields.
	Tex           Texture
	Source        Rect
	Target        Rect
	Alpha         *float32
	Acquire       AcquireSync
	BufferResv    any
	OutputTransform Transform
	BufferTransform Transform
}

type OpKind int

const (
	OpSync OpKind = iota
	OpFillRect
	OpCopyTexture
)

// Transform mirrors the Wayland output-transform enum (rotation/flip); the
// direct-scanout probe requires buffer and output transform to match
// exactly (no rotation/mirroring in direct scanout).
type Transform int

const (
	TransformNormal Transform = iota
	TransformRotate90
	TransformRotate180
	TransformRotate270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

// MaybeSwapRect swaps the x and y axis pairs for a 90/270-degree rotation
// (with or without a flip), leaving them unchanged otherwise — the
// direct-scanout probe uses this to map a CopyTexture's target rect into
// plane-pixel space under the output's current rotation.
func (t Transform) MaybeSwapRect(x1, x2, y1, y2 float32) (ox1, ox2, oy1, oy2 float32) {
	switch t {
	case TransformRotate90, TransformRotate270, TransformFlipped90, TransformFlipped270:
		return y1, y2, x1, x2
	default:
		return x1, x2, y1, y2
	}
}
