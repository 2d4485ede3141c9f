package system

import (
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Usage is a snapshot of the process footprint for the performance report.
type Usage struct {
	RSS         uint64
	CPUPercent  float64
	TotalMemory uint64
	UsedPercent float64
}

// ProcessUsage samples the current process and host memory.
func ProcessUsage() (Usage, error) {
	var u Usage
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return u, fmt.Errorf("open process: %w", err)
	}
	mi, err := p.MemoryInfo()
	if err != nil {
		return u, fmt.Errorf("memory info: %w", err)
	}
	u.RSS = mi.RSS
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		u.TotalMemory = vm.Total
		u.UsedPercent = vm.UsedPercent
	}
	return u, nil
}

// InitResourceLimits пытается поднять лимит открытых файлов до want:
// покадровый экспорт держит открытыми много PNG одновременно.
func InitResourceLimits(want uint64) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Не удалось получить лимит файлов: %v", err)
		return
	}
	if rLimit.Cur >= want {
		return
	}

	rLimit.Cur = want
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Не удалось установить лимит файлов: %v", err)
		return
	}
	fmt.Printf("[*] Системный лимит открытых файлов увеличен до %d\n", rLimit.Cur)
}
