package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	authv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/constraints"
	"github.com/bobbyrathoree/hostmap/internal/k8s"
	"github.com/bobbyrathoree/hostmap/internal/store"
)

type checkResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the workspace and cluster access",
		Long: `Diagnose your hostmap setup by checking:
  - topology.yaml and mapping.yaml parse and match the schema
  - Service dependencies in the topology resolve without cycles
  - Kubernetes connectivity and ConfigMap permissions for the mapping store`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	writer := NewOutputWriter(cmd)
	if !writer.IsJSON() {
		fmt.Fprintln(out, "hostmap doctor - checking your setup")
		fmt.Fprintln(out)
	}

	results, cat := checkWorkspace(cmd)

	if k8s.HasKubeconfig() {
		results = append(results, checkResult{Name: "kubeconfig", OK: true, Message: k8s.KubeconfigPath()})
	} else {
		results = append(results, checkResult{Name: "kubeconfig", OK: false, Message: "not found"})
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	client, err := storeClient(cmd)
	if err != nil {
		results = append(results, checkResult{Name: "cluster connection", OK: false, Message: err.Error()})
	} else {
		results = append(results, checkResult{
			Name:    "cluster connection",
			OK:      true,
			Message: fmt.Sprintf("context=%s, server=%s", client.Context, client.ServerVersion()),
		})

		ns := client.Namespace
		if _, err := client.Clientset.CoreV1().Namespaces().Get(ctx, ns, metav1.GetOptions{}); err != nil {
			results = append(results, checkResult{Name: fmt.Sprintf("namespace (%s)", ns), OK: false, Message: "does not exist or no access"})
		} else {
			results = append(results, checkResult{Name: fmt.Sprintf("namespace (%s)", ns), OK: true, Message: "exists"})
		}

		for _, verb := range []string{"get", "create", "update"} {
			results = append(results, checkPermission(ctx, client, ns, "configmaps", verb))
		}
		if cat != nil {
			st := store.NewStore(client.Clientset, ns, cat.ClusterID())
			if latest, err := st.GetLatest(ctx); err != nil {
				results = append(results, checkResult{Name: "mapping store", OK: false, Message: err.Error()})
			} else if latest == nil {
				results = append(results, checkResult{Name: "mapping store", OK: true, Message: "no mapping saved yet"})
			} else {
				results = append(results, checkResult{
					Name:    "mapping store",
					OK:      true,
					Message: fmt.Sprintf("revision %s, %d edges", store.FormatRevision(latest.Revision), len(latest.Edges)),
				})
			}
		}
	}

	hasErrors := false
	for _, r := range results {
		if !r.OK {
			hasErrors = true
			break
		}
	}

	if writer.IsJSON() {
		return writer.WriteJSON(map[string]interface{}{
			"success": !hasErrors,
			"checks":  results,
		})
	}

	fmt.Fprintln(out, "Results:")
	for _, r := range results {
		if r.OK {
			fmt.Fprintf(out, "  ✓ %s: %s\n", r.Name, r.Message)
		} else {
			fmt.Fprintf(out, "  ✗ %s: %s\n", r.Name, r.Message)
		}
	}

	fmt.Fprintln(out)
	if hasErrors {
		fmt.Fprintln(out, "Some checks failed. Fix the issues above to use hostmap effectively.")
	} else {
		fmt.Fprintln(out, "All checks passed.")
	}
	return nil
}

// checkWorkspace checks the local files. The catalog is returned when the
// topology loads.
func checkWorkspace(cmd *cobra.Command) ([]checkResult, *catalog.Catalog) {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return []checkResult{{Name: "topology", OK: false, Message: err.Error()}}, nil
	}

	cat, err := ws.Catalog()
	if err != nil {
		return []checkResult{{Name: "topology", OK: false, Message: err.Error()}}, nil
	}
	results := []checkResult{{
		Name:    "topology",
		OK:      true,
		Message: fmt.Sprintf("%s: cluster %s, %d hosts, %d services", ws.TopologyPath(), cat.ClusterID(), len(cat.Hosts()), len(cat.Services())),
	}}

	if errs := constraints.NewResolver(cat).Errors(); len(errs) > 0 {
		results = append(results, checkResult{Name: "service dependencies", OK: false, Message: errs[0].Error()})
	} else {
		results = append(results, checkResult{Name: "service dependencies", OK: true, Message: "resolved"})
	}

	doc, err := ws.Mapping()
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "mapping", OK: false, Message: err.Error()})
	case doc == nil:
		results = append(results, checkResult{Name: "mapping", OK: true, Message: "no mapping file yet"})
	default:
		results = append(results, checkResult{Name: "mapping", OK: true, Message: fmt.Sprintf("%s: %d edges", ws.MappingPath(), len(doc.Mapping))})
	}
	return results, cat
}

func checkPermission(ctx context.Context, client *k8s.Client, namespace, resource, verb string) checkResult {
	name := fmt.Sprintf("permission: %s %s", verb, resource)
	review := &authv1.SelfSubjectAccessReview{
		Spec: authv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authv1.ResourceAttributes{
				Namespace: namespace,
				Verb:      verb,
				Resource:  resource,
			},
		},
	}

	result, err := client.Clientset.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return checkResult{Name: name, OK: false, Message: fmt.Sprintf("check failed: %v", err)}
	}
	if result.Status.Allowed {
		return checkResult{Name: name, OK: true, Message: "allowed"}
	}
	return checkResult{Name: name, OK: false, Message: "denied"}
}
