package sqlstore

import (
	"context"

	"github.com/marmos91/lazurite/pkg/metastore"
	"github.com/marmos91/lazurite/pkg/metastore/meterrors"
)

// Operations declared by the store interface but not supported by this
// backend. They mutate nothing and fail with NotImplemented.

func (s *SQLStore) UndeleteBlob(ctx context.Context, mc metastore.Context, account, container, blob string) error {
	return meterrors.NewNotImplemented(mc.RequestID, "UndeleteBlob")
}

func (s *SQLStore) StartCopyFromURL(ctx context.Context, mc metastore.Context, source, account, container, blob string) error {
	return meterrors.NewNotImplemented(mc.RequestID, "StartCopyFromURL")
}

func (s *SQLStore) AbortCopyFromURL(ctx context.Context, mc metastore.Context, account, container, blob, copyID string) error {
	return meterrors.NewNotImplemented(mc.RequestID, "AbortCopyFromURL")
}

func (s *SQLStore) UploadPages(ctx context.Context, mc metastore.Context, account, container, blob string, start, end uint64) error {
	return meterrors.NewNotImplemented(mc.RequestID, "UploadPages")
}

func (s *SQLStore) ClearPages(ctx context.Context, mc metastore.Context, account, container, blob string, start, end uint64) error {
	return meterrors.NewNotImplemented(mc.RequestID, "ClearPages")
}

func (s *SQLStore) GetPageRanges(ctx context.Context, mc metastore.Context, account, container, blob, snapshot string) error {
	return meterrors.NewNotImplemented(mc.RequestID, "GetPageRanges")
}

func (s *SQLStore) ResizePageBlob(ctx context.Context, mc metastore.Context, account, container, blob string, size uint64) error {
	return meterrors.NewNotImplemented(mc.RequestID, "ResizePageBlob")
}

func (s *SQLStore) UpdateSequenceNumber(ctx context.Context, mc metastore.Context, account, container, blob string, action string, number int64) error {
	return meterrors.NewNotImplemented(mc.RequestID, "UpdateSequenceNumber")
}

func (s *SQLStore) AppendBlock(ctx context.Context, mc metastore.Context, account, container, blob string) error {
	return meterrors.NewNotImplemented(mc.RequestID, "AppendBlock")
}
