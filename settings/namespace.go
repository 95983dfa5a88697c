package settings

import (
	"fmt"
	"strings"
)

// Authority identifies the settings provider that backs every namespace.
const Authority = "cmsettings"

// Namespace is one of the independent settings scopes. Each namespace has its
// own key space and its own version counter.
type Namespace string

const (
	// NamespaceGlobal holds device-wide settings shared by all users.
	NamespaceGlobal Namespace = "global"
	// NamespaceSecure holds per-user settings that applications cannot write.
	NamespaceSecure Namespace = "secure"
	// NamespaceSystem holds per-user preferences.
	NamespaceSystem Namespace = "system"
)

// Namespaces lists all known namespaces in a stable order.
func Namespaces() []Namespace {
	return []Namespace{NamespaceGlobal, NamespaceSecure, NamespaceSystem}
}

// ParseNamespace converts a textual namespace name.
func ParseNamespace(value string) (Namespace, error) {
	switch ns := Namespace(strings.ToLower(strings.TrimSpace(value))); ns {
	case NamespaceGlobal, NamespaceSecure, NamespaceSystem:
		return ns, nil
	default:
		return "", fmt.Errorf("unknown settings namespace %q", value)
	}
}

// URI returns the content URI used for full queries against the namespace.
func (n Namespace) URI() string {
	return "content://" + Authority + "/" + string(n)
}

// VersionProperty names the externally published version counter.
func (n Namespace) VersionProperty() string {
	return "sys.cm_settings_" + string(n) + "_version"
}

// GetCommand is the provider call used for single-key lookups.
func (n Namespace) GetCommand() string {
	return "GET_" + string(n)
}

// PutCommand is the provider call used for writes.
func (n Namespace) PutCommand() string {
	return "PUT_" + string(n)
}

func (n Namespace) String() string {
	return string(n)
}
