package benchmark

import (
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// DeviceInfo describes the machine a report was produced on.
type DeviceInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platformVersion,omitempty"`
	KernelVersion   string `json:"kernelVersion,omitempty"`
	Arch            string `json:"arch"`
	CPUModel        string `json:"cpuModel,omitempty"`
	CPUCores        int    `json:"cpuCores"`
	TotalMemoryMB   uint64 `json:"totalMemoryMB"`
	GoVersion       string `json:"goVersion"`
}

// CollectDeviceInfo fills in what the host exposes. Lookups that fail are
// logged and left empty.
func CollectDeviceInfo() DeviceInfo {
	d := DeviceInfo{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPUCores:  runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}
	if h, err := host.Info(); err != nil {
		log.Debug().Err(err).Msg("benchmark: host info")
	} else {
		d.Hostname = h.Hostname
		d.Platform = h.Platform
		d.PlatformVersion = h.PlatformVersion
		d.KernelVersion = h.KernelVersion
	}
	if vm, err := mem.VirtualMemory(); err != nil {
		log.Debug().Err(err).Msg("benchmark: memory info")
	} else {
		d.TotalMemoryMB = vm.Total / bytesPerMB
	}
	if cores, err := cpu.Counts(true); err == nil && cores > 0 {
		d.CPUCores = cores
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		d.CPUModel = infos[0].ModelName
	}
	return d
}
