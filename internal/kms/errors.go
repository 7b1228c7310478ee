package kms

import "fmt"

// Error taxonomy. Each kind is a distinct type so callers can
// branch with errors.As; the types that carry a Cause expose it through
// Unwrap.

type MissingPropertyError struct{ Name string }

func (e *MissingPropertyError) Error() string { return fmt.Sprintf("missing property %q", e.Name) }

type InvalidEnumValueError struct {
	Name  string
	Value uint64
}

func (e *InvalidEnumValueError) Error() string {
	return fmt.Sprintf("property %q has unrecognized enum value %d", e.Name, e.Value)
}

type UnknownPlaneTypeError struct{ Value uint64 }

func (e *UnknownPlaneTypeError) Error() string {
	return fmt.Sprintf("plane has unknown type enum value %d", e.Value)
}

type UpdatePropertiesError struct{ Cause error }

func (e *UpdatePropertiesError) Error() string { return fmt.Sprintf("update properties: %v", e.Cause) }
func (e *UpdatePropertiesError) Unwrap() error  { return e.Cause }

type ModesetError struct{ Cause error }

func (e *ModesetError) Error() string { return fmt.Sprintf("modeset: %v", e.Cause) }
func (e *ModesetError) Unwrap() error  { return e.Cause }

type CommitError struct {
	Cause         error
	LostMaster    bool // EACCES: session inactive / master revoked
	DirectScanout bool // failure occurred while a direct-scanout commit was in flight
}

func (e *CommitError) Error() string { return fmt.Sprintf("commit: %v", e.Cause) }
func (e *CommitError) Unwrap() error  { return e.Cause }

type EnumerationError struct {
	Kind  string // "resources" | "plane" | "crtc" | "encoder" | "connector"
	Cause error
}

func (e *EnumerationError) Error() string { return fmt.Sprintf("enumerate %s: %v", e.Kind, e.Cause) }
func (e *EnumerationError) Unwrap() error  { return e.Cause }

type MissingDevFormatError struct{ Format uint32 }

func (e *MissingDevFormatError) Error() string {
	return fmt.Sprintf("no scanout device supports format 0x%x", e.Format)
}

type MissingDevModifierError struct {
	Format   uint32
	Modifier uint64
}

func (e *MissingDevModifierError) Error() string {
	return fmt.Sprintf("no primary plane supports modifier 0x%x for format 0x%x", e.Modifier, e.Format)
}

type ScanoutBufferError struct{ Cause error }

func (e *ScanoutBufferError) Error() string { return fmt.Sprintf("allocate scanout buffer: %v", e.Cause) }
func (e *ScanoutBufferError) Unwrap() error  { return e.Cause }

type FramebufferError struct{ Cause error }

func (e *FramebufferError) Error() string { return fmt.Sprintf("create framebuffer: %v", e.Cause) }
func (e *FramebufferError) Unwrap() error  { return e.Cause }

type ImportError struct {
	Kind  string // "image" | "fb" | "texture"
	Cause error
}

func (e *ImportError) Error() string { return fmt.Sprintf("import %s: %v", e.Kind, e.Cause) }
func (e *ImportError) Unwrap() error  { return e.Cause }

type CopyToOutputError struct{ Cause error }

func (e *CopyToOutputError) Error() string { return fmt.Sprintf("copy to output device: %v", e.Cause) }
func (e *CopyToOutputError) Unwrap() error  { return e.Cause }

type AtomicModesettingError struct{ Cause error }

func (e *AtomicModesettingError) Error() string {
	return fmt.Sprintf("device lacks atomic modesetting: %v", e.Cause)
}
func (e *AtomicModesettingError) Unwrap() error { return e.Cause }

// NoCrtcForConnectorError and NoPrimaryPlaneForConnectorError signal that
// the solver could not satisfy the constraint-satisfaction problem for one
// connector even though the overall commit may still proceed for others.
type NoCrtcForConnectorError struct{ ConnectorID uint32 }

func (e *NoCrtcForConnectorError) Error() string {
	return fmt.Sprintf("no free crtc compatible with connector %d", e.ConnectorID)
}

type NoPrimaryPlaneForConnectorError struct{ ConnectorID uint32 }

func (e *NoPrimaryPlaneForConnectorError) Error() string {
	return fmt.Sprintf("no free primary plane for connector %d", e.ConnectorID)
}

type NoModeForConnectorError struct{ ConnectorID uint32 }

func (e *NoModeForConnectorError) Error() string {
	return fmt.Sprintf("connector %d has no mode selected", e.ConnectorID)
}
