package cmd

import (
	"context"
	"fmt"
	"time"

	awsclient "github.com/marksidell/dynips/internal/aws"
	"github.com/marksidell/dynips/internal/constants"
	"github.com/marksidell/dynips/internal/directory"
	"github.com/marksidell/dynips/internal/policy"
	"github.com/marksidell/dynips/internal/reconcile"
	"github.com/marksidell/dynips/internal/store"
)

const (
	awsTimeout     = 30 * time.Second
	awsMaxAttempts = 5
)

func (a *app) services(ctx context.Context) (*awsclient.ServiceClient, error) {
	profile, region := a.cfg.Merge(a.profile, a.region)
	client, err := awsclient.NewServiceClient(ctx, awsclient.Options{
		Profile:     profile,
		Region:      region,
		Timeout:     awsTimeout,
		MaxAttempts: awsMaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing AWS client: %w", err)
	}
	return client, nil
}

// objects opens the configured record store. The returned func releases it.
func (a *app) objects(ctx context.Context, svc *awsclient.ServiceClient) (store.ObjectStore, func(), error) {
	switch a.cfg.Store {
	case constants.StoreSQLite:
		db, err := store.OpenSQLite(ctx, a.cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				a.log.Warn("closing record store", "error", err)
			}
		}, nil
	default:
		return store.NewS3Objects(svc.S3, a.cfg.Bucket), func() {}, nil
	}
}

func (a *app) directory(svc *awsclient.ServiceClient) *directory.Directory {
	return directory.New(svc.Route53, directory.Options{
		ZoneID:     a.cfg.ZoneID,
		DomainRoot: a.cfg.DomainRoot,
		DefaultIP:  a.cfg.DefaultIP,
		TTL:        int64(a.cfg.TTL),
	})
}

func (a *app) manager(svc *awsclient.ServiceClient, dir *directory.Directory) (*reconcile.Manager, error) {
	src, err := policy.NewSource(a.cfg.PolicyKey, svc.S3)
	if err != nil {
		return nil, err
	}
	return reconcile.NewManager(svc.EC2, dir, src, a.log), nil
}
