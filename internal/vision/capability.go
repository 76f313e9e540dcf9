package vision

// Flavor tags whether a session is running with every capability
// configured (Full) or a reduced set (Lite).
type Flavor string

const (
	FlavorLite Flavor = "lite"
	FlavorFull Flavor = "full"
)

// CapabilityStatus is the runtime health of one pluggable capability.
type CapabilityStatus string

const (
	StatusAvailable    CapabilityStatus = "available"
	StatusPartial      CapabilityStatus = "partial"
	StatusNotConfigured CapabilityStatus = "not_configured"
	StatusUnavailable  CapabilityStatus = "unavailable"
)

// CapabilityEntry is one row of the capability matrix: a named pluggable
// subsystem and its current status.
type CapabilityEntry struct {
	Name   string
	Status CapabilityStatus
}

// CapabilityMatrix is computed once at startup and frozen; it never
// changes mid-session. Constructing it never fails — absent capabilities
// degrade the matrix, not the boot sequence.
type CapabilityMatrix struct {
	Entries []CapabilityEntry
}

// Flavor reports Full only when every entry is Available; any
// not_configured/unavailable/partial entry drops the session to Lite.
func (m CapabilityMatrix) Flavor() Flavor {
	for _, e := range m.Entries {
		if e.Status != StatusAvailable {
			return FlavorLite
		}
	}
	return FlavorFull
}

// RequireFull returns every entry that is not Available when
// requireFull is set; callers treat a non-empty result as a fatal
// startup failure.
func (m CapabilityMatrix) RequireFull(requireFull bool) []CapabilityEntry {
	if !requireFull {
		return nil
	}
	var missing []CapabilityEntry
	for _, e := range m.Entries {
		if e.Status != StatusAvailable {
			missing = append(missing, e)
		}
	}
	return missing
}

// BuildCapabilityMatrix inspects the OCR engine, template matcher
// backends, and VLM availability to produce the startup matrix.
func BuildCapabilityMatrix(ocrEngine *Engine, templateMatcherReady bool, vlmConfigured bool) CapabilityMatrix {
	entries := []CapabilityEntry{
		{Name: "template_matching", Status: statusFor(templateMatcherReady, true)},
		{Name: "ocr", Status: ocrStatus(ocrEngine)},
		{Name: "vlm", Status: vlmStatus(vlmConfigured)},
	}
	return CapabilityMatrix{Entries: entries}
}

func statusFor(ready, configured bool) CapabilityStatus {
	switch {
	case ready:
		return StatusAvailable
	case configured:
		return StatusPartial
	default:
		return StatusUnavailable
	}
}

func ocrStatus(e *Engine) CapabilityStatus {
	switch {
	case e == nil || len(e.backends) == 0:
		return StatusNotConfigured
	case e.Active() == nil:
		// Backends registered, but none passed its availability check.
		return StatusUnavailable
	default:
		return StatusAvailable
	}
}

func vlmStatus(configured bool) CapabilityStatus {
	if !configured {
		return StatusNotConfigured
	}
	return StatusAvailable
}
