// Package k8s builds the Kubernetes client used to reach the mapping store.
package k8s

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
)

// Client wraps a Kubernetes clientset with context information
type Client struct {
	Clientset  kubernetes.Interface
	RestConfig *rest.Config
	Context    string
	Namespace  string
}

// ClientOptions configures how to build the client
type ClientOptions struct {
	Context   string
	Namespace string
	// Kubeconfig overrides the default loading rules when set
	Kubeconfig string
}

// NewClient creates a new Kubernetes client from kubeconfig
func NewClient(opts ClientOptions) (*Client, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if opts.Kubeconfig != "" {
		loadingRules.ExplicitPath = opts.Kubeconfig
	}
	configOverrides := &clientcmd.ConfigOverrides{}
	if opts.Context != "" {
		configOverrides.CurrentContext = opts.Context
	}

	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)

	rawConfig, err := kubeConfig.RawConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	context := opts.Context
	if context == "" {
		context = rawConfig.CurrentContext
	}

	namespace := opts.Namespace
	if namespace == "" {
		ns, _, err := kubeConfig.Namespace()
		if err != nil {
			namespace = "default"
		} else {
			namespace = ns
		}
	}

	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build rest config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	klog.V(2).InfoS("Created kubernetes client", "context", context, "namespace", namespace, "host", restConfig.Host)
	return &Client{
		Clientset:  clientset,
		RestConfig: restConfig,
		Context:    context,
		Namespace:  namespace,
	}, nil
}

// ServerVersion asks the API server for its version, returning "unknown" on error
func (c *Client) ServerVersion() string {
	version, err := c.Clientset.Discovery().ServerVersion()
	if err != nil {
		klog.V(2).InfoS("Failed to get server version", "err", err)
		return "unknown"
	}
	return version.GitVersion
}

// KubeconfigPath returns the path to the kubeconfig file
func KubeconfigPath() string {
	if kubeconfig := os.Getenv("KUBECONFIG"); kubeconfig != "" {
		return kubeconfig
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kube", "config")
}

// HasKubeconfig checks if a kubeconfig file exists
func HasKubeconfig() bool {
	path := KubeconfigPath()
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
