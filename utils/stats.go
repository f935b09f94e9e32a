package utils

import (
	"log"
	"os"
	"runtime"
	"strconv"
)

var memThreshRestart = 500

func InitMemThresh() {
	memThresh := os.Getenv("TRACKING_MEM_THRESH_RESTART")
	if len(memThresh) > 0 {
		memThreshRestartLocal, err := strconv.Atoi(memThresh)
		if err != nil {
			log.Println("TRACKING_MEM_THRESH_RESTART should be valid integer. Found ", memThresh)
			return
		} else {
			log.Println("Setting mem threshold at " + strconv.Itoa(memThreshRestartLocal))
		}
		memThreshRestart = memThreshRestartLocal
	}
}

func LogMemoryStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	if int(m.Alloc/1024/1024) > memThreshRestart {
		log.Println("current mem usage", m.Alloc/1024/1024)
		os.Exit(3)
	}

	log.Println("Alloc in MB: ", m.Alloc/1024/1024)
	log.Println("Sys in MB: ", m.Sys/1024/1024)
}
