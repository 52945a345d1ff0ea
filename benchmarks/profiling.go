package benchmarks

import (
	"os"
	"path"
	"runtime"
	"runtime/pprof"

	"k8s.io/klog/v2"
)

// startProfiling starts the cpu profile when requested, the returned func stops it and writes the heap profile
func startProfiling(dir string) (func(), error) {
	stops := make([]func(), 0)
	if cpuprofile != "" {
		cpuProfPath := path.Join(dir, cpuprofile)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
		klog.InfoS("Profiling CPU", "path", cpuProfPath)
		f, err := os.Create(cpuProfPath)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, err
		}
		stops = append(stops, func() {
			pprof.StopCPUProfile()
			f.Close()
		})
	}

	if memprofile != "" {
		memProfPath := path.Join(dir, memprofile)
		stops = append(stops, func() {
			klog.InfoS("Profiling memory", "path", memProfPath)
			f, err := os.Create(memProfPath)
			if err != nil {
				klog.ErrorS(err, "Could not create memory profile")
				return
			}
			defer f.Close()
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				klog.ErrorS(err, "Could not write memory profile")
			}
		})
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}, nil
}
