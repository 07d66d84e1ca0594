package cpumon

// HypervisorPortLayer reports guest CPU entitlement when running under a
// hypervisor, a narrow slice of the VM/port-layer surface (spec §4.4).
type HypervisorPortLayer interface {
	// HypervisorPresent reports whether a hypervisor is detected.
	HypervisorPresent() bool
	// GuestEntitlement returns the guest's CPU entitlement, valid only
	// when HypervisorPresent is true.
	GuestEntitlement() float64
}

// Entitlement caches the target CPU count and, under a hypervisor, the
// guest CPU entitlement; JVMEntitlement is the min of the two (spec
// §4.4: "jvmEntitlement is the min of the two").
type Entitlement struct {
	targetCPUCount float64
	port           HypervisorPortLayer
}

// NewEntitlement creates an Entitlement cache for the given target CPU
// count (e.g. GOMAXPROCS or a container cgroup limit).
func NewEntitlement(targetCPUCount float64, port HypervisorPortLayer) *Entitlement {
	return &Entitlement{targetCPUCount: targetCPUCount, port: port}
}

// TargetCPUCount returns the cached target CPU count.
func (e *Entitlement) TargetCPUCount() float64 {
	return e.targetCPUCount
}

// JVMEntitlement returns the effective CPU entitlement: the target CPU
// count, or the guest entitlement under a hypervisor if it is smaller.
func (e *Entitlement) JVMEntitlement() float64 {
	if e.port == nil || !e.port.HypervisorPresent() {
		return e.targetCPUCount
	}
	guest := e.port.GuestEntitlement()
	if guest < e.targetCPUCount {
		return guest
	}
	return e.targetCPUCount
}
