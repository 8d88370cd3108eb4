package scan

import (
	"fmt"
	"net"
	"strconv"
)

// CameraPorts are the ports on which an HTTP camera endpoint is expected.
var CameraPorts = []int{80, 554, 4747, 8080, 8081, 8082}

// IsCameraPort reports whether port is one of CameraPorts.
func IsCameraPort(port int) bool {
	for _, p := range CameraPorts {
		if p == port {
			return true
		}
	}
	return false
}

// CameraURLs returns http://address:port for every discovered service on a
// camera port, in discovery order. Which one to open is up to the caller.
func CameraURLs(services []Service) []string {
	var urls []string
	for _, s := range services {
		if !IsCameraPort(s.Port) {
			continue
		}
		urls = append(urls, fmt.Sprintf("http://%s", net.JoinHostPort(s.Address, strconv.Itoa(s.Port))))
	}
	return urls
}
