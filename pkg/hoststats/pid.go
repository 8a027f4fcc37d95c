package hoststats

import "os"

func currentPID() int {
	return os.Getpid()
}
