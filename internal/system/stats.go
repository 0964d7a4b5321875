package system

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// HostMemory reports used system memory in MiB and as a percentage.
func HostMemory() (usedMiB uint64, usedPercent float64, err error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.Used / (1 << 20), vm.UsedPercent, nil
}
