package v1

import metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

// MirrorSpec names the slice of an upstream repository to import: the
// cross product of distributions, components and architectures selects
// the index files.
type MirrorSpec struct {
	// URL is the repository base, e.g. https://ftp.debian.org/debian.
	// Environment variables in it are expanded.
	URL           string   `json:"url"`
	Distributions []string `json:"distributions,omitempty"`
	Components    []string `json:"components,omitempty"`
	Architectures []string `json:"architectures,omitempty"`
}

type Mirror struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec MirrorSpec `json:"spec"`
}

// Defaulted fills in the conventional selection for fields left empty.
func (m *Mirror) Defaulted() *Mirror {
	if len(m.Spec.Distributions) == 0 {
		m.Spec.Distributions = []string{"stable"}
	}
	if len(m.Spec.Components) == 0 {
		m.Spec.Components = []string{"main", "contrib"}
	}
	if len(m.Spec.Architectures) == 0 {
		m.Spec.Architectures = []string{"binary-amd64", "source"}
	}
	return m
}
