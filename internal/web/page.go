package web

import "strconv"

const defaultTitle = "LAN System Monitor"

// Page is the data rendered into the dashboard.
type Page struct {
	Title   string
	LANAddr string
	Port    int
}

// DisplayTitle is the page title, falling back to the product name.
func (p Page) DisplayTitle() string {
	if p.Title == "" {
		return defaultTitle
	}
	return p.Title
}

// ShareURL is the address other machines on the LAN should open.
func (p Page) ShareURL() string {
	return "http://" + p.LANAddr + ":" + strconv.Itoa(p.Port)
}
