package specregistry

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"coordinator/internal/apperrors"
	"coordinator/internal/model"
)

// gRPC method paths on the external registry service. Request/response
// payloads are structpb.Struct: the registry's own wire contract is
// defined and versioned in its own proto package, which this coordinator
// does not own, so client calls encode/decode through the protobuf
// well-known struct type rather than vendoring the registry's generated
// stubs.
const (
	methodListStores      = "/registry.v1.SpecRegistry/ListStores"
	methodListFeatureSets = "/registry.v1.SpecRegistry/ListFeatureSets"
)

// GRPCClient is a SpecService backed by a gRPC connection to the spec
// registry service.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC opens an insecure gRPC connection to the registry at addr.
// Production deployments terminate TLS at a sidecar/mesh proxy, matching
// how the rest of this platform's internal services are wired.
func DialGRPC(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, apperrors.Internal("specregistry.dial", err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Ready(ctx context.Context) error {
	state := c.conn.GetState()
	if state.String() == "SHUTDOWN" {
		return apperrors.Internal("specregistry.ready", fmt.Errorf("connection shut down"))
	}
	return nil
}

func (c *GRPCClient) ListStores(ctx context.Context, filter string) ([]model.Store, error) {
	req, err := structpb.NewStruct(map[string]any{"filter": filter})
	if err != nil {
		return nil, apperrors.Internal("specregistry.listStores.encode", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodListStores, req, resp); err != nil {
		return nil, apperrors.Internal("specregistry.listStores", err)
	}

	return decodeStores(resp)
}

func (c *GRPCClient) ListFeatureSets(ctx context.Context, filter Filter) ([]model.FeatureSet, error) {
	req, err := structpb.NewStruct(map[string]any{
		"project": filter.Project,
		"name":    filter.Name,
	})
	if err != nil {
		return nil, apperrors.Internal("specregistry.listFeatureSets.encode", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodListFeatureSets, req, resp); err != nil {
		return nil, apperrors.Internal("specregistry.listFeatureSets", err)
	}

	return decodeFeatureSets(resp)
}

func decodeStores(resp *structpb.Struct) ([]model.Store, error) {
	rawStores, ok := resp.Fields["stores"]
	if !ok {
		return nil, nil
	}

	var out []model.Store
	for _, v := range rawStores.GetListValue().GetValues() {
		fields := v.GetStructValue().GetFields()
		store := model.Store{
			Name: fields["name"].GetStringValue(),
		}
		for _, sub := range fields["subscriptions"].GetListValue().GetValues() {
			subFields := sub.GetStructValue().GetFields()
			store.Subscriptions = append(store.Subscriptions, model.Subscription{
				Project: subFields["project"].GetStringValue(),
				Name:    subFields["name"].GetStringValue(),
			})
		}
		out = append(out, store)
	}
	return out, nil
}

func decodeFeatureSets(resp *structpb.Struct) ([]model.FeatureSet, error) {
	raw, ok := resp.Fields["featureSets"]
	if !ok {
		return nil, nil
	}

	var out []model.FeatureSet
	for _, v := range raw.GetListValue().GetValues() {
		fields := v.GetStructValue().GetFields()
		out = append(out, model.FeatureSet{
			Project: fields["project"].GetStringValue(),
			Name:    fields["name"].GetStringValue(),
			Version: int(fields["version"].GetNumberValue()),
		})
	}
	return out, nil
}

var _ SpecService = (*GRPCClient)(nil)
