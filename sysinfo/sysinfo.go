/*
 * Copyright © 2020 Camilo Hernández <me@camiloh.com>
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
 * THE SOFTWARE.
 */

// Package sysinfo reports local host metrics for the monitor TUI, adapted
// from beekeeper's statusCallback/getCPUTemp (lib/callbacks.go) from a
// request/response pull model into a plain local snapshot function.
package sysinfo

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

// Snapshot is a point-in-time report of this host's load.
type Snapshot struct {
	OS      string
	Usage   float32
	CPUTemp float32
}

// Collect gathers a Snapshot, best-effort: any metric gopsutil can't read
// on the current OS is left zero rather than failing the whole call.
func Collect() Snapshot {
	s := Snapshot{OS: runtime.GOOS}

	if usage, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(usage) > 0 {
		s.Usage = float32(usage[0])
	}

	s.CPUTemp = cpuTemp()

	return s
}

// cpuTemp tries its best to find the CPU temperature for the host OS,
// unchanged in behavior from beekeeper's getCPUTemp.
func cpuTemp() float32 {
	temps, err := host.SensorsTemperatures()
	if err != nil {
		return 0
	}

	switch runtime.GOOS {
	case "linux":
		var coreTempsTotal float64
		coreNum := 0
		for {
			key := fmt.Sprintf("coretemp_core%d_input", coreNum)
			found := false
			for _, sensor := range temps {
				if sensor.SensorKey == key {
					coreTempsTotal += sensor.Temperature
					found = true
				}
			}
			if !found {
				break
			}
			coreNum++
		}

		if coreNum == 0 {
			return 0
		}
		return float32(math.Round(coreTempsTotal/float64(coreNum)*10) / 10)

	case "darwin":
		for _, sensor := range temps {
			if sensor.SensorKey == "TC0P" {
				return float32(math.Round(sensor.Temperature*10) / 10)
			}
		}
		return 0

	default:
		var biggest float32
		for _, v := range temps {
			temp := float32(v.Temperature)
			if temp > biggest {
				biggest = temp
			}
		}
		return biggest
	}
}
