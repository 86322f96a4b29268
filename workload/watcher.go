/*
 * workload/watcher.go
 *
 * Watcher bridges a client-go SharedIndexInformer's level-triggered pod
 * callbacks into the edge-triggered Applied/Deleted/Restarted vocabulary
 * the adapter expects.
 */

package workload

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/ctron/bommer/internal/config"
	"github.com/ctron/bommer/internal/logging"
)

// Watcher watches pods across a namespace (or the whole cluster, when
// namespace is empty) and emits Applied/Deleted/Restarted events.
type Watcher struct {
	client    kubernetes.Interface
	namespace string
	logger    logging.Logger
}

// NewWatcher constructs a Watcher. An empty namespace watches all namespaces.
func NewWatcher(client kubernetes.Interface, namespace string, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &Watcher{client: client, namespace: namespace, logger: logger}
}

// Run starts the informer and blocks until ctx is cancelled, emitting events
// onto events as pods are added, updated, deleted or initially listed.
func (w *Watcher) Run(ctx context.Context, events chan<- Event) error {
	listWatch := &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			return w.client.CoreV1().Pods(w.namespace).List(ctx, options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			return w.client.CoreV1().Pods(w.namespace).Watch(ctx, options)
		},
	}

	informer := cache.NewSharedIndexInformer(listWatch, &corev1.Pod{}, config.InformerResyncInterval, cache.Indexers{})

	emit := func(evt Event) {
		select {
		case events <- evt:
		case <-ctx.Done():
		}
	}

	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			if pod, ok := podFromRuntimeObject(obj); ok {
				emit(Event{Kind: Applied, Pod: pod})
			}
		},
		UpdateFunc: func(_, newObj interface{}) {
			if pod, ok := podFromRuntimeObject(newObj); ok {
				emit(Event{Kind: Applied, Pod: pod})
			}
		},
		DeleteFunc: func(obj interface{}) {
			if pod, ok := podFromRuntimeObject(obj); ok {
				emit(Event{Kind: Deleted, Pod: pod})
			}
		},
	})
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	go informer.Run(stop)

	if !cache.WaitForCacheSync(stop, informer.HasSynced) {
		return ctx.Err()
	}

	pods := make([]Pod, 0)
	for _, obj := range informer.GetStore().List() {
		if pod, ok := podFromRuntimeObject(obj); ok {
			pods = append(pods, pod)
		}
	}
	emit(Event{Kind: Restarted, Pods: pods})
	w.logger.Infof("synced %d pod(s)", len(pods))

	<-ctx.Done()
	return ctx.Err()
}

// podFromRuntimeObject converts an informer callback payload into the
// package's narrow Pod view, unwrapping a tombstone if necessary.
func podFromRuntimeObject(obj interface{}) (Pod, bool) {
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		tombstone, isTombstone := obj.(cache.DeletedFinalStateUnknown)
		if !isTombstone {
			return Pod{}, false
		}
		pod, ok = tombstone.Obj.(*corev1.Pod)
		if !ok {
			return Pod{}, false
		}
	}

	total := len(pod.Status.ContainerStatuses) + len(pod.Status.InitContainerStatuses) + len(pod.Status.EphemeralContainerStatuses)
	ids := make([]string, 0, total)
	for _, cs := range pod.Status.ContainerStatuses {
		ids = append(ids, cs.ImageID)
	}
	for _, cs := range pod.Status.InitContainerStatuses {
		ids = append(ids, cs.ImageID)
	}
	for _, cs := range pod.Status.EphemeralContainerStatuses {
		ids = append(ids, cs.ImageID)
	}

	return Pod{Namespace: pod.Namespace, Name: pod.Name, ImageIDs: ids}, true
}
