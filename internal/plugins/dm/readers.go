package dm

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (p *Plugin) hostname() (string, error) {
	return os.Hostname()
}

func (p *Plugin) kernelRelease() (string, error) {
	return p.readTrimmed(filepath.Join(p.procRoot, "sys/kernel/osrelease"))
}

func (p *Plugin) machineID() (string, error) {
	return p.readTrimmed(filepath.Join(p.etcRoot, "machine-id"))
}

func (p *Plugin) bootTime() (float64, error) {
	data, err := os.ReadFile(filepath.Join(p.procRoot, "stat"))
	if err != nil {
		return 0, err
	}
	return parseBootTime(data)
}

func (p *Plugin) uptime() (float64, error) {
	data, err := os.ReadFile(filepath.Join(p.procRoot, "uptime"))
	if err != nil {
		return 0, err
	}
	return parseUptime(data)
}

func (p *Plugin) loadAverage() (float64, error) {
	data, err := os.ReadFile(filepath.Join(p.procRoot, "loadavg"))
	if err != nil {
		return 0, err
	}
	return parseLoadAverage(data)
}

func (p *Plugin) memAvailable() (float64, error) {
	data, err := os.ReadFile(filepath.Join(p.procRoot, "meminfo"))
	if err != nil {
		return 0, err
	}
	return parseMemAvailable(data)
}

// cpuTemperature reads the first thermal zone, reported in millidegrees.
func (p *Plugin) cpuTemperature() (float64, error) {
	data, err := os.ReadFile(filepath.Join(p.sysRoot, "class/thermal/thermal_zone0/temp"))
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("dm: thermal zone: %w", err)
	}
	return milli / 1000.0, nil
}

func (p *Plugin) hasDefaultRoute() (bool, error) {
	data, err := os.ReadFile(filepath.Join(p.procRoot, "net/route"))
	if err != nil {
		return false, err
	}
	return parseDefaultRoute(data), nil
}

// interfacesJSON reports network interfaces and their addresses.
func (p *Plugin) interfacesJSON() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	out := make(map[string][]string, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		list := make([]string, 0, len(addrs))
		for _, a := range addrs {
			list = append(list, a.String())
		}
		out[iface.Name] = list
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *Plugin) readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func parseBootTime(stat []byte) (float64, error) {
	for _, line := range strings.Split(string(stat), "\n") {
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "btime ")), 64)
		if err != nil {
			return 0, fmt.Errorf("dm: btime: %w", err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("dm: btime not found in stat")
}

func parseUptime(uptime []byte) (float64, error) {
	fields := strings.Fields(string(uptime))
	if len(fields) == 0 {
		return 0, fmt.Errorf("dm: empty uptime")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("dm: uptime: %w", err)
	}
	return v, nil
}

func parseLoadAverage(loadavg []byte) (float64, error) {
	fields := strings.Fields(string(loadavg))
	if len(fields) == 0 {
		return 0, fmt.Errorf("dm: empty loadavg")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("dm: loadavg: %w", err)
	}
	return v, nil
}

func parseMemAvailable(meminfo []byte) (float64, error) {
	for _, line := range strings.Split(string(meminfo), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, fmt.Errorf("dm: MemAvailable: %w", err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("dm: MemAvailable not found in meminfo")
}

// parseDefaultRoute reports whether the kernel routing table contains a
// 0.0.0.0/0 entry (destination column all zeroes).
func parseDefaultRoute(route []byte) bool {
	lines := strings.Split(string(route), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "00000000" {
			return true
		}
	}
	return false
}
