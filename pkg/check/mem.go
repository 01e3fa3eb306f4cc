package check

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// processRSS reports this process's resident set in bytes.
func processRSS() (int64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}

	mi, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}

	return int64(mi.RSS), nil
}
