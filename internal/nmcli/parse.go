package nmcli

import "strings"

// DeviceStatus is one row of `nmcli -t -f DEVICE,TYPE,STATE device`.
type DeviceStatus struct {
	Device string
	Type   string
	State  string
}

// ActiveConnection is one row of `nmcli -t -f NAME,UUID,TYPE,DEVICE
// connection show --active`.
type ActiveConnection struct {
	Name   string
	UUID   string
	Type   string
	Device string
}

// WifiSecrets holds the SSID/PSK pair of a wifi profile.
type WifiSecrets struct {
	SSID string
	PSK  string
}

// splitTerseLine splits one line of nmcli terse output on unescaped colons.
// nmcli escapes literal ':' and '\' inside field values with a backslash.
func splitTerseLine(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

func parseDeviceStatus(out string) []DeviceStatus {
	var devices []DeviceStatus
	for _, line := range nonEmptyLines(out) {
		fields := splitTerseLine(line)
		if len(fields) < 3 {
			continue
		}
		devices = append(devices, DeviceStatus{
			Device: fields[0],
			Type:   fields[1],
			State:  fields[2],
		})
	}
	return devices
}

func parseActiveConnections(out string) []ActiveConnection {
	var conns []ActiveConnection
	for _, line := range nonEmptyLines(out) {
		fields := splitTerseLine(line)
		if len(fields) < 4 {
			continue
		}
		conns = append(conns, ActiveConnection{
			Name:   fields[0],
			UUID:   fields[1],
			Type:   fields[2],
			Device: fields[3],
		})
	}
	return conns
}

// parseWifiSecrets reads `field:value` lines as printed by
// `nmcli -s -t -f 802-11-wireless.ssid,802-11-wireless-security.psk
// connection show <name>`. Values may contain colons, so only the first
// unescaped colon separates field from value.
func parseWifiSecrets(out string) WifiSecrets {
	var secrets WifiSecrets
	for _, line := range nonEmptyLines(out) {
		fields := splitTerseLine(line)
		if len(fields) < 2 {
			continue
		}
		value := strings.Join(fields[1:], ":")
		switch fields[0] {
		case "802-11-wireless.ssid":
			secrets.SSID = value
		case "802-11-wireless-security.psk":
			secrets.PSK = value
		}
	}
	return secrets
}

// parseSSIDList reads one SSID per line, dropping hidden-network blanks.
func parseSSIDList(out string) []string {
	var ssids []string
	for _, line := range nonEmptyLines(out) {
		fields := splitTerseLine(line)
		ssid := fields[0]
		if ssid == "" || ssid == "--" {
			continue
		}
		ssids = append(ssids, ssid)
	}
	return ssids
}

func nonEmptyLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
