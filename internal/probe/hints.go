package probe

// DefaultPorts are probed on every host of a network scan.
var DefaultPorts = []int{
	20, 21, 22, 23, 25, 53, 80, 110, 143, 443, 445, 554, 1883,
	3306, 3389, 4747, 5432, 8080, 8081, 8082, 8443,
}

var hints = map[int]string{
	20:   "FTP Data",
	21:   "FTP Control",
	22:   "SSH",
	23:   "Telnet",
	25:   "SMTP",
	53:   "DNS",
	80:   "HTTP",
	110:  "POP3",
	143:  "IMAP",
	443:  "HTTPS",
	445:  "SMB",
	554:  "RTSP",
	1883: "MQTT",
	3306: "MySQL",
	3389: "RDP",
	4747: "IP Camera",
	5432: "PostgreSQL",
	8080: "HTTP Alt/Camera",
	8081: "HTTP Alt/Camera",
	8082: "HTTP Alt/Camera",
	8443: "HTTPS Alt",
}

// ServiceHint classifies a port by its well-known service.
func ServiceHint(port int) string {
	if h, ok := hints[port]; ok {
		return h
	}
	return "Unknown"
}

// httpPorts are fingerprinted with a GET / when fingerprinting is enabled.
var httpPorts = map[int]bool{80: true, 4747: true, 8080: true, 8081: true, 8082: true}
