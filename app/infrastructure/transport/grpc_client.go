package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/usecase"
)

// CacheAdminClient calls CacheAdmin on a portal node.
type CacheAdminClient struct {
	conn grpc.ClientConnInterface
}

func NewCacheAdminClient(conn grpc.ClientConnInterface) *CacheAdminClient {
	return &CacheAdminClient{conn: conn}
}

// DialCacheAdmin opens a plaintext connection to addr.
func DialCacheAdmin(addr string) (*grpc.ClientConn, *CacheAdminClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return conn, NewCacheAdminClient(conn), nil
}

func (c *CacheAdminClient) Invalidate(ctx context.Context, keys ...entity.QueryKey) error {
	in, err := FromQueryKeys(keys...)
	if err != nil {
		return err
	}
	out := new(emptypb.Empty)
	return c.conn.Invoke(ctx, "/"+CacheAdminService+"/Invalidate", in, out)
}

func (c *CacheAdminClient) ListQueries(ctx context.Context) ([]map[string]any, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, "/"+CacheAdminService+"/ListQueries", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	queries := make([]map[string]any, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		if st := v.GetStructValue(); st != nil {
			queries = append(queries, st.AsMap())
		}
	}
	return queries, nil
}

func (c *CacheAdminClient) Fetch(ctx context.Context, rr usecase.ReadRequest) (map[string]any, error) {
	in, err := FromReadRequest(rr)
	if err != nil {
		return nil, fmt.Errorf("encode fetch request: %w", err)
	}
	out := new(structpb.Value)
	if err := c.conn.Invoke(ctx, "/"+CacheAdminService+"/Fetch", in, out); err != nil {
		return nil, err
	}
	st := out.GetStructValue()
	if st == nil {
		return nil, fmt.Errorf("fetch answered %T, want struct", out.GetKind())
	}
	return st.AsMap(), nil
}
