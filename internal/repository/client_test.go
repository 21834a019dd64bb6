package repository

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	getOuts   []*dynamodb.GetItemOutput
	getErr    error
	putErr    error
	updateOut *dynamodb.UpdateItemOutput
	updateErr error

	getCalls     int
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastUpdateIn *dynamodb.UpdateItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(f.getOuts) == 0 {
		return &dynamodb.GetItemOutput{}, nil
	}
	out := f.getOuts[0]
	if len(f.getOuts) > 1 {
		f.getOuts = f.getOuts[1:]
	}
	return out, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdateIn = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updateOut == nil {
		return &dynamodb.UpdateItemOutput{}, nil
	}
	return f.updateOut, nil
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: ptr("The conditional request failed")}
}

func ptr[T any](v T) *T { return &v }

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, " ")
	require.Error(t, err)
}

type fakeNetErr struct{}

func (fakeNetErr) Error() string   { return "dial tcp: i/o timeout" }
func (fakeNetErr) Timeout() bool   { return true }
func (fakeNetErr) Temporary() bool { return true }

var _ net.Error = fakeNetErr{}

func TestWrap_ClassifiesTransientErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"throughput", &types.ProvisionedThroughputExceededException{}, true},
		{"request limit", &types.RequestLimitExceeded{}, true},
		{"internal", &types.InternalServerError{}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Boom", Fault: smithy.FaultServer}, true},
		{"throttling code", &smithy.GenericAPIError{Code: "ThrottlingException", Fault: smithy.FaultClient}, true},
		{"network", fakeNetErr{}, true},
		{"validation", &smithy.GenericAPIError{Code: "ValidationException", Fault: smithy.FaultClient}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wrap("Op", tc.err)
			require.Equal(t, tc.transient, errors.Is(err, ErrUnavailable))
			require.ErrorIs(t, err, tc.err)
			require.Contains(t, err.Error(), "Op")
		})
	}
}

func TestAttrHelpers(t *testing.T) {
	item := map[string]types.AttributeValue{
		"s":    &types.AttributeValueMemberS{Value: "x"},
		"n":    numValue(3),
		"bad":  &types.AttributeValueMemberN{Value: "three"},
		"b":    &types.AttributeValueMemberBOOL{Value: true},
		"l":    listValue([]string{"a", "b"}),
		"lbad": &types.AttributeValueMemberL{Value: []types.AttributeValue{numValue(1)}},
	}

	s, err := strAttr(item, "s")
	require.NoError(t, err)
	require.Equal(t, "x", s)
	_, err = strAttr(item, "n")
	require.Error(t, err)
	_, err = strAttr(item, "missing")
	require.Error(t, err)

	n, err := optIntAttr(item, "n")
	require.NoError(t, err)
	require.Equal(t, 3, *n)
	n, err = optIntAttr(item, "missing")
	require.NoError(t, err)
	require.Nil(t, n)
	_, err = intAttr(item, "bad")
	require.Error(t, err)

	b, err := boolAttr(item, "b")
	require.NoError(t, err)
	require.True(t, b)

	l, err := listAttr(item, "l")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, l)
	l, err = listAttr(item, "missing")
	require.NoError(t, err)
	require.Empty(t, l)
	_, err = listAttr(item, "lbad")
	require.Error(t, err)
}
