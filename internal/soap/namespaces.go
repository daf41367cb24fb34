package soap

// XML namespaces used on the wire. Prefixes in the templates are fixed and
// must not be renamed; some devices match them literally.
const (
	NSSoap       = "http://www.w3.org/2003/05/soap-envelope"
	NSAddressing = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	NSDiscovery  = "http://schemas.xmlsoap.org/ws/2005/04/discovery"
	NSEventing   = "http://schemas.xmlsoap.org/ws/2004/08/eventing"
	NSDevProf    = "http://schemas.xmlsoap.org/ws/2006/02/devprof"
	NSMex        = "http://schemas.xmlsoap.org/ws/2004/09/mex"
	NSPnpx       = "http://schemas.microsoft.com/windows/pnpx/2005/10"
	NSDevFound   = "http://schemas.microsoft.com/windows/2008/09/devicefoundation"
	NSScan       = "http://schemas.microsoft.com/windows/2006/08/wdp/scan"
	NSPrint      = "http://schemas.microsoft.com/windows/2006/08/wdp/print"
	NSImaging    = "http://printer.example.org/2003/imaging"
)

// Prefixes maps the fixed prefixes to their namespace.
var Prefixes = map[string]string{
	"soap": NSSoap,
	"wsa":  NSAddressing,
	"wsd":  NSDiscovery,
	"wse":  NSEventing,
	"wsdp": NSDevProf,
	"mex":  NSMex,
	"pnpx": NSPnpx,
	"df":   NSDevFound,
	"sca":  NSScan,
	"wscn": NSScan,
	"pri":  NSPrint,
	"wprt": NSPrint,
	"i":    NSImaging,
}

// Well-known addressing and filter URIs.
const (
	AnonymousAddress    = "http://schemas.xmlsoap.org/ws/2004/08/addressing/role/anonymous"
	DiscoveryTo         = "urn:schemas-xmlsoap-org:ws:2005:04:discovery"
	ActionFilterDialect = "http://schemas.xmlsoap.org/ws/2006/02/devprof/Action"
)
