package threadstore

import "github.com/tracecap/tracecap/internal/descriptor"

var stubDesc = descriptor.Descriptor{ID: 1, Type: descriptor.Block, Status: descriptor.On, Name: "stub"}
