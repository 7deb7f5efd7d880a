// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport forwards sensor packets upstream.
package transport

import (
	"fmt"

	"github.com/relabs-tech/inertial_tracker/internal/orientation"
)

// PacketType distinguishes upstream packets. Values match the tracker server protocol ids.
type PacketType uint8

const (
	PacketAccel                PacketType = 4
	PacketTap                  PacketType = 13
	PacketError                PacketType = 14
	PacketRotationData         PacketType = 17
	PacketMagnetometerAccuracy PacketType = 18
)

func (p PacketType) String() string {
	switch p {
	case PacketAccel:
		return "accel"
	case PacketTap:
		return "tap"
	case PacketError:
		return "error"
	case PacketRotationData:
		return "rotation"
	case PacketMagnetometerAccuracy:
		return "mag_accuracy"
	default:
		return fmt.Sprintf("packet%d", uint8(p))
	}
}

// DataKind tags rotation data.
type DataKind uint8

const (
	DataNormal     DataKind = 1
	DataCorrection DataKind = 2
)

// Sender is the upstream capability a sensor session forwards through.
type Sender interface {
	SendRotationData(q orientation.Quaternion, kind DataKind, accuracy uint8, sensorID uint8, packet PacketType) error
	SendMagnetometerAccuracy(value float64, sensorID uint8, packet PacketType) error
	SendVector(v [3]float64, packet PacketType) error
	SendByte(value uint8, sensorID uint8, packet PacketType) error
}

// Packet is the JSON form of every upstream message.
type Packet struct {
	Type   PacketType `json:"type"`
	Sensor *uint8     `json:"sensor,omitempty"`

	Kind     DataKind                `json:"kind,omitempty"`
	Quat     *orientation.Quaternion `json:"quat,omitempty"`
	Quality  *uint8                  `json:"quality,omitempty"`
	Accuracy *float64                `json:"accuracy,omitempty"`
	Vector   *[3]float64             `json:"vector,omitempty"`
	Value    *uint8                  `json:"value,omitempty"`
}

// emitter turns the send primitives into Packets for a sink.
type emitter struct {
	sink func(Packet) error
}

func (e emitter) SendRotationData(q orientation.Quaternion, kind DataKind, accuracy uint8, sensorID uint8, packet PacketType) error {
	return e.sink(Packet{Type: packet, Sensor: &sensorID, Kind: kind, Quat: &q, Quality: &accuracy})
}

func (e emitter) SendMagnetometerAccuracy(value float64, sensorID uint8, packet PacketType) error {
	return e.sink(Packet{Type: packet, Sensor: &sensorID, Accuracy: &value})
}

func (e emitter) SendVector(v [3]float64, packet PacketType) error {
	return e.sink(Packet{Type: packet, Vector: &v})
}

func (e emitter) SendByte(value uint8, sensorID uint8, packet PacketType) error {
	return e.sink(Packet{Type: packet, Sensor: &sensorID, Value: &value})
}
