package corpus

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// maxDocumentBytes caps a single corpus document read.
const maxDocumentBytes = 4 << 20

// Source lists and reads raw corpus documents.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, path string) ([]byte, error)
}

// DirSource reads corpus documents from a local directory tree.
type DirSource struct {
	root string
}

// NewDirSource builds a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: strings.TrimSpace(dir)}
}

// List walks the tree and returns relative paths in sorted order.
// A missing root yields an empty list; downstream treats that as an
// empty corpus rather than a failure.
func (s *DirSource) List(_ context.Context) ([]string, error) {
	if s.root == "" {
		return nil, nil
	}
	if _, err := os.Stat(s.root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat corpus root: %w", err)
	}
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxDocumentBytes {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus root: %w", err)
	}
	return paths, nil
}

// Read returns the bytes of one document.
func (s *DirSource) Read(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
}

// ObjectSource reads corpus documents from a MinIO/S3 bucket.
type ObjectSource struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectSource connects to object storage and verifies the bucket exists.
func NewObjectSource(endpoint, accessKey, secretKey, bucket, prefix string, useSSL bool) (*ObjectSource, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check corpus bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("corpus bucket %q does not exist", bucket)
	}
	return &ObjectSource{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

// List returns object keys under the configured prefix, prefix-stripped.
func (s *ObjectSource) List(ctx context.Context) ([]string, error) {
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	var paths []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list corpus objects: %w", object.Err)
		}
		if object.Size > maxDocumentBytes {
			continue
		}
		paths = append(paths, strings.TrimPrefix(object.Key, prefix))
	}
	return paths, nil
}

// Read downloads one object.
func (s *ObjectSource) Read(ctx context.Context, path string) ([]byte, error) {
	key := path
	if s.prefix != "" {
		key = s.prefix + "/" + path
	}
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get corpus object %q: %w", key, err)
	}
	defer object.Close()
	return io.ReadAll(io.LimitReader(object, maxDocumentBytes))
}
