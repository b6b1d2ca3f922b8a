package main

import "testing"

func TestMessageType(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"shoot", `{"type":"shoot","playerId":1,"direction":"up"}`, MsgShoot, false},
		{"create", `{"type":"create-session","name":"tex"}`, MsgCreateSession, false},
		{"missing type", `{"playerId":1}`, "", true},
		{"not json", `howdy`, "", true},
		{"empty", ``, "", true},
		{"wrong shape", `[1,2,3]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MessageType([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("type = %q, want %q", got, tt.want)
			}
		})
	}
}
