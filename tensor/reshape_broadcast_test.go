package tensor

import "testing"

func TestReshapeBackward(t *testing.T) {
	input := MustNew([]float64{1, 2, 3, 4, 5, 6}, 6)
	input.SetRequiresGrad(true)
	reshaped, err := input.Reshape(2, 3)
	if err != nil {
		t.Fatalf("reshape failed: %v", err)
	}
	if !equalShapes(reshaped.Shape(), []int{2, 3}) {
		t.Fatalf("unexpected reshape shape: %v", reshaped.Shape())
	}
	inferred, err := reshaped.Reshape(3, -1)
	if err != nil {
		t.Fatalf("reshape with -1 failed: %v", err)
	}
	if !equalShapes(inferred.Shape(), []int{3, 2}) {
		t.Fatalf("unexpected inferred shape: %v", inferred.Shape())
	}

	sum := Sum(inferred)
	if err := sum.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}
	grad := input.Grad()
	if grad == nil || !AlmostEqualSlices(grad.Data(), []float64{1, 1, 1, 1, 1, 1}, 1e-9) {
		t.Fatalf("unexpected grad after reshape: %v", grad)
	}
}

func TestBroadcastToMaterializes(t *testing.T) {
	row := MustNew([]float64{1, 2, 3}, 1, 3)
	row.SetRequiresGrad(true)
	grid, err := BroadcastTo(row, []int{2, 3})
	if err != nil {
		t.Fatalf("BroadcastTo failed: %v", err)
	}
	if !AlmostEqualSlices(grid.Data(), []float64{1, 2, 3, 1, 2, 3}, 1e-12) {
		t.Fatalf("unexpected broadcast data: %v", grid.Data())
	}
	weights := MustNew([]float64{1, 1, 1, 2, 2, 2}, 2, 3)
	prod, err := Mul(grid, weights)
	if err != nil {
		t.Fatalf("mul failed: %v", err)
	}
	if err := Sum(prod).Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}
	if !AlmostEqualSlices(row.Grad().Data(), []float64{3, 3, 3}, 1e-12) {
		t.Fatalf("unexpected broadcast grad: %v", row.Grad().Data())
	}

	col := MustNew([]float64{5, 7}, 2, 1)
	wide, err := BroadcastTo(col, []int{3, 2, 2})
	if err != nil {
		t.Fatalf("BroadcastTo with new leading axis failed: %v", err)
	}
	if !AlmostEqualSlices(wide.Data(), []float64{5, 5, 7, 7, 5, 5, 7, 7, 5, 5, 7, 7}, 1e-12) {
		t.Fatalf("unexpected data: %v", wide.Data())
	}
	if same, _ := BroadcastTo(col, []int{2, 1}); same != col {
		t.Fatalf("expected identical shape to return the input")
	}
	if _, err := BroadcastTo(col, []int{3, 3}); err == nil {
		t.Fatalf("expected incompatible broadcast to fail")
	}
}

func TestReduceToShape(t *testing.T) {
	grad := MustNew([]float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	}, 3, 2, 2)
	reduced, err := ReduceToShape(grad, []int{2, 2})
	if err != nil {
		t.Fatalf("ReduceToShape failed: %v", err)
	}
	data := grad.Data()
	want := make([]float64, 4)
	idx := 0
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			sumVal := 0.0
			for depth := 0; depth < 3; depth++ {
				offset := depth*4 + row*2 + col
				sumVal += data[offset]
			}
			want[idx] = sumVal
			idx++
		}
	}
	if !AlmostEqualSlices(reduced.Data(), want, 1e-9) {
		t.Fatalf("unexpected reduced data: %v", reduced.Data())
	}

	if _, err := ReduceToShape(grad, []int{2, 2, 2, 2}); err == nil {
		t.Fatalf("expected error for higher rank target")
	}
	if _, err := ReduceToShape(grad, []int{3, 3}); err == nil {
		t.Fatalf("expected error for incompatible shape")
	}
}
